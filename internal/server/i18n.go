package server

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

const (
	LanguageEn = "en"
	LanguageFr = "fr"
)

//go:embed locales/*.toml
var localeFS embed.FS

var (
	bundleOnce sync.Once
	bundle     *i18n.Bundle
	matcher    = language.NewMatcher([]language.Tag{language.English, language.French})
)

func messages() *i18n.Bundle {
	bundleOnce.Do(func() {
		bundle = i18n.NewBundle(language.English)
		bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)
		files, err := fs.Glob(localeFS, "locales/*.toml")
		if err != nil {
			zap.L().Error("list locale files", zap.Error(err))
			return
		}
		for _, f := range files {
			if _, err := bundle.LoadMessageFileFS(localeFS, f); err != nil {
				zap.L().Warn("failed to load translation file", zap.String("file", f), zap.Error(err))
			}
		}
	})
	return bundle
}

type langKey struct{}

func withLanguage(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, langKey{}, negotiateLanguage(r.Header.Get("Accept-Language")))
}

func negotiateLanguage(header string) string {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return LanguageEn
	}
	_, idx, _ := matcher.Match(tags...)
	if idx == 1 {
		return LanguageFr
	}
	return LanguageEn
}

func languageFrom(ctx context.Context) string {
	if lang, ok := ctx.Value(langKey{}).(string); ok {
		return lang
	}
	return LanguageEn
}

// localize renders msgID in the request language, falling back to English
// and then to the id itself.
func localize(ctx context.Context, msgID string, data map[string]any) string {
	l := i18n.NewLocalizer(messages(), languageFrom(ctx), LanguageEn)
	msg, err := l.Localize(&i18n.LocalizeConfig{MessageID: msgID, TemplateData: data})
	if err != nil {
		zap.L().Warn("translation not found", zap.String("lang", languageFrom(ctx)), zap.String("message_id", msgID), zap.Error(err))
		return msgID
	}
	return msg
}
