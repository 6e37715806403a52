// Package i18n localizes error kinds for the Mini-App. The kind is always
// decided first, from the error value; this package only picks the text.
package i18n

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
	"github.com/cassiomorais/cashdesk/internal/domain/wizard"
	"golang.org/x/text/language"
)

// Locale is a supported UI language.
type Locale string

const (
	RU Locale = "ru"
	KY Locale = "ky"

	Default = RU
)

// MaxPassthroughLength bounds upstream messages shown verbatim.
const MaxPassthroughLength = 200

var (
	matcher = language.NewMatcher([]language.Tag{language.Russian, language.Kirghiz})
	htmlTag = regexp.MustCompile(`<\s*[a-zA-Z!/]`)
)

// Parse picks a locale from an explicit value (query or header) and falls
// back to Accept-Language, then the default.
func Parse(explicit, acceptLanguage string) Locale {
	if loc, ok := lookup(strings.ToLower(strings.TrimSpace(explicit))); ok {
		return loc
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return Default
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return Default
	}
	if idx == 1 {
		return KY
	}
	return RU
}

func lookup(s string) (Locale, bool) {
	switch {
	case s == "":
		return "", false
	case s == string(KY), strings.HasPrefix(s, "ky-"), s == "kg":
		return KY, true
	case s == string(RU), strings.HasPrefix(s, "ru-"):
		return RU, true
	}
	return "", false
}

var kindMessages = map[Locale]map[domainErrors.Kind]string{
	RU: {
		domainErrors.KindValidation:       "Проверьте введённые данные",
		domainErrors.KindPrecondition:     "Не удалось подтвердить вывод на стороне букмекера. Попробуйте ещё раз",
		domainErrors.KindTransport:        "Нет связи с сервером. Проверьте подключение и попробуйте ещё раз",
		domainErrors.KindServerRejection:  "Не удалось выполнить запрос",
		domainErrors.KindAlreadySubmitted: "Заявка уже отправлена. Дождитесь её обработки",
		domainErrors.KindParse:            "Сервер вернул неожиданный ответ. Попробуйте позже",
		domainErrors.KindNotFound:         "Заявка не найдена. Начните заново",
		domainErrors.KindUnauthorized:     "Откройте приложение через Telegram",
		domainErrors.KindInternal:         "Что-то пошло не так. Попробуйте позже",
	},
	KY: {
		domainErrors.KindValidation:       "Киргизилген маалыматтарды текшериңиз",
		domainErrors.KindPrecondition:     "Букмекер тарабында чыгарууну ырастоо мүмкүн болбоду. Кайра аракет кылыңыз",
		domainErrors.KindTransport:        "Сервер менен байланыш жок. Туташууну текшерип, кайра аракет кылыңыз",
		domainErrors.KindServerRejection:  "Сурамды аткаруу мүмкүн болбоду",
		domainErrors.KindAlreadySubmitted: "Өтүнмө жөнөтүлгөн. Анын иштетилишин күтүңүз",
		domainErrors.KindParse:            "Сервер күтүлбөгөн жооп кайтарды. Кийинчерээк аракет кылыңыз",
		domainErrors.KindNotFound:         "Өтүнмө табылган жок. Кайрадан баштаңыз",
		domainErrors.KindUnauthorized:     "Колдонмону Telegram аркылуу ачыңыз",
		domainErrors.KindInternal:         "Бир нерсе туура эмес болду. Кийинчерээк аракет кылыңыз",
	},
}

var stepMessages = map[Locale]map[wizard.ErrorKind]string{
	RU: {
		wizard.ErrBookmakerRequired:   "Выберите букмекера",
		wizard.ErrBookmakerUnknown:    "Неизвестный букмекер",
		wizard.ErrBookmakerNotAllowed: "Этот букмекер недоступен",
		wizard.ErrBankRequired:        "Выберите банк",
		wizard.ErrBankUnknown:         "Неизвестный банк",
		wizard.ErrAmountNotANumber:    "Введите сумму числом",
		wizard.ErrAmountTooLow:        "Сумма меньше минимальной",
		wizard.ErrAmountTooHigh:       "Сумма больше максимальной",
		wizard.ErrPhoneTooShort:       "Введите номер телефона полностью",
		wizard.ErrAccountIDRequired:   "Введите ID счёта",
		wizard.ErrAccountIDNotNumeric: "ID должен состоять только из цифр",
		wizard.ErrAccountIDNotChecked: "ID ещё проверяется",
		wizard.ErrAccountIDNotFound:   "Игрок с таким ID не найден",
		wizard.ErrQRPhotoRequired:     "Загрузите QR-код",
		wizard.ErrSiteCodeRequired:    "Введите код с сайта",
		wizard.ErrCodeNotVerified:     "Код ещё не подтверждён",
	},
	KY: {
		wizard.ErrBookmakerRequired:   "Букмекерди тандаңыз",
		wizard.ErrBookmakerUnknown:    "Белгисиз букмекер",
		wizard.ErrBookmakerNotAllowed: "Бул букмекер жеткиликсиз",
		wizard.ErrBankRequired:        "Банкты тандаңыз",
		wizard.ErrBankUnknown:         "Белгисиз банк",
		wizard.ErrAmountNotANumber:    "Сумманы сан менен жазыңыз",
		wizard.ErrAmountTooLow:        "Сумма минималдуудан аз",
		wizard.ErrAmountTooHigh:       "Сумма максималдуудан көп",
		wizard.ErrPhoneTooShort:       "Телефон номерин толук жазыңыз",
		wizard.ErrAccountIDRequired:   "Эсеп ID жазыңыз",
		wizard.ErrAccountIDNotNumeric: "ID сандардан гана турушу керек",
		wizard.ErrAccountIDNotChecked: "ID текшерилүүдө",
		wizard.ErrAccountIDNotFound:   "Мындай ID менен оюнчу табылган жок",
		wizard.ErrQRPhotoRequired:     "QR-кодду жүктөңүз",
		wizard.ErrSiteCodeRequired:    "Сайттагы кодду жазыңыз",
		wizard.ErrCodeNotVerified:     "Код али ырастала элек",
	},
}

func normalize(loc Locale) Locale {
	if _, ok := kindMessages[loc]; ok {
		return loc
	}
	return Default
}

// KindMessage returns the generic text for kind.
func KindMessage(loc Locale, kind domainErrors.Kind) string {
	msgs := kindMessages[normalize(loc)]
	if msg, ok := msgs[kind]; ok {
		return msg
	}
	return msgs[domainErrors.KindInternal]
}

// StepMessage returns the text for a step validation error.
func StepMessage(loc Locale, kind wizard.ErrorKind) string {
	if msg, ok := stepMessages[normalize(loc)][kind]; ok {
		return msg
	}
	return KindMessage(loc, domainErrors.KindValidation)
}

// Message localizes err. Upstream texts of rejections and failed
// preconditions are shown verbatim when short and not HTML.
func Message(loc Locale, err error) string {
	kind := domainErrors.KindOf(err)

	var upstream string
	var rej *domainErrors.ServerRejectionError
	var pre *domainErrors.PreconditionError
	switch {
	case errors.As(err, &pre):
		upstream = pre.Message
	case errors.As(err, &rej):
		upstream = rej.Message
	}
	if kind != domainErrors.KindTransport && Passthrough(upstream) {
		return strings.TrimSpace(upstream)
	}
	return KindMessage(loc, kind)
}

// Passthrough reports whether an upstream message may be shown as is.
func Passthrough(msg string) bool {
	msg = strings.TrimSpace(msg)
	if msg == "" || utf8.RuneCountInString(msg) > MaxPassthroughLength {
		return false
	}
	return !htmlTag.MatchString(msg)
}

type contextKey struct{}

// WithLocale stores loc on ctx.
func WithLocale(ctx context.Context, loc Locale) context.Context {
	return context.WithValue(ctx, contextKey{}, loc)
}

// FromContext returns the request locale, or Default.
func FromContext(ctx context.Context) Locale {
	if loc, ok := ctx.Value(contextKey{}).(Locale); ok {
		return loc
	}
	return Default
}
