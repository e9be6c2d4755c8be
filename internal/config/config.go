package config

import (
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	GeminiAPIKey   string
	DatabaseURL    string
	DatabaseDriver string
	HTTPPort       string
	LogLevel       string
	AllowedOrigins []string

	ChatModel    string
	SpeechModel  string
	VoiceName    string
	SpeechLocale string

	HistoryWindow int
	ReportMinStep int
	ReportDelay   time.Duration

	EmailJSServiceID  string
	EmailJSTemplateID string
	EmailJSPublicKey  string
}

var AppConfig Config

var defaults = map[string]any{
	"DATABASE_URL":    "doulia_audit.db",
	"DATABASE_DRIVER": "sqlite3",
	"HTTP_PORT":       "8080",
	"LOG_LEVEL":       "INFO",
	"ALLOWED_ORIGINS": "*",
	"CHAT_MODEL":      "gemini-3-flash-preview",
	"SPEECH_MODEL":    "gemini-2.5-flash-preview-tts",
	"VOICE_NAME":      "Zephyr",
	"SPEECH_LOCALE":   "fr-FR",
	"HISTORY_WINDOW":  10,
	"REPORT_MIN_STEP": 3,
	"REPORT_DELAY_MS": 3000,
}

// LoadConfig fills AppConfig from, in increasing precedence: defaults, the optional
// config file, a .env file and the process environment. Flags bound to the global
// viper instance by the CLI win over all of these.
func LoadConfig(configFile string) error {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, relying on environment variables")
	}

	for key, value := range defaults {
		viper.SetDefault(key, value)
	}
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return err
		}
	}

	AppConfig = fromViper(viper.GetViper())

	if AppConfig.GeminiAPIKey == "" {
		// Chat degrades to the fallback reply and speech to silence; keep serving.
		log.Error("GEMINI_API_KEY is missing from environment variables")
	}
	return nil
}

func fromViper(v *viper.Viper) Config {
	historyWindow := v.GetInt("HISTORY_WINDOW")
	if historyWindow <= 0 {
		historyWindow = defaults["HISTORY_WINDOW"].(int)
	}

	return Config{
		GeminiAPIKey:   apiKey(v),
		DatabaseURL:    v.GetString("DATABASE_URL"),
		DatabaseDriver: v.GetString("DATABASE_DRIVER"),
		HTTPPort:       v.GetString("HTTP_PORT"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),

		ChatModel:    v.GetString("CHAT_MODEL"),
		SpeechModel:  v.GetString("SPEECH_MODEL"),
		VoiceName:    v.GetString("VOICE_NAME"),
		SpeechLocale: v.GetString("SPEECH_LOCALE"),

		HistoryWindow: historyWindow,
		ReportMinStep: v.GetInt("REPORT_MIN_STEP"),
		ReportDelay:   time.Duration(v.GetInt("REPORT_DELAY_MS")) * time.Millisecond,

		EmailJSServiceID:  v.GetString("EMAILJS_SERVICE_ID"),
		EmailJSTemplateID: v.GetString("EMAILJS_TEMPLATE_ID"),
		EmailJSPublicKey:  v.GetString("EMAILJS_PUBLIC_KEY"),
	}
}

// GEMINI_API_KEY first, then the generic API_KEY.
func apiKey(v *viper.Viper) string {
	if key := strings.TrimSpace(v.GetString("GEMINI_API_KEY")); key != "" {
		return key
	}
	return strings.TrimSpace(v.GetString("API_KEY"))
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
