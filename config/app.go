package config

type App struct {
	Port                string `env:"APP_PORT" default:"8080"`
	DatabaseURL         string `env:"DATABASE_URL,required"`
	JWTSecret           string `env:"JWT_SECRET,required"`
	StripeAPIKey        string `env:"STRIPE_API_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	TelegramBotToken    string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID      string `env:"TELEGRAM_CHAT_ID"`
	ReferenceTimezone   string `env:"REFERENCE_TIMEZONE" default:"Europe/Kyiv"`
	MaxBorrowDays       int    `env:"MAX_BORROW_DAYS" default:"30"`
	FineMultiplier      string `env:"FINE_MULTIPLIER" default:"2.0"`
	SessionExpiryHours  int    `env:"SESSION_EXPIRY_HOURS" default:"24"`
	PaymentSuccessURL   string `env:"PAYMENT_SUCCESS_URL"`
	PaymentCancelURL    string `env:"PAYMENT_CANCEL_URL"`
	Env                 string `env:"APP_ENV" default:"dev"`
}
