package translation

import (
	"strings"

	"github.com/leonelquinteros/gotext"
	log "github.com/sirupsen/logrus"
)

// Setup loads the "default" domain for lang from dir. Values such as
// "en_US.UTF-8" are reduced to their language part.
func Setup(dir, lang string) {
	lang, _, _ = strings.Cut(strings.ToLower(strings.TrimSpace(lang)), ".")
	if lang == "" || lang == "c" || lang == "posix" {
		lang = "en"
	}
	gotext.Configure(dir, lang, "default")
	log.Debugf("Using language %s", GetLanguage())
}

func GetLanguage() string {
	lang := gotext.GetLanguage()

	if lang == "und" || lang == "" {
		return "en"
	}

	return lang
}

// Translate returns the message for msgID, or msgID itself when the
// catalog has no entry, formatted with vars.
func Translate(msgID string, vars ...interface{}) string {
	return gotext.Get(msgID, vars...)
}
