package validate

// disposableDomains is a static deny-list of throwaway-mail providers.
// Membership blocks the signup bonus path; it is never consulted for login.
var disposableDomains = map[string]struct{}{
	"0-mail.com":             {},
	"10minutemail.com":       {},
	"10minutemail.net":       {},
	"20minutemail.com":       {},
	"33mail.com":             {},
	"anonbox.net":            {},
	"anonymbox.com":          {},
	"bccto.me":               {},
	"burnermail.io":          {},
	"byom.de":                {},
	"chacuo.net":             {},
	"deadaddress.com":        {},
	"discard.email":          {},
	"disposablemail.com":     {},
	"dispostable.com":        {},
	"dropmail.me":            {},
	"emailondeck.com":        {},
	"emailtemporario.com.br": {},
	"fakeinbox.com":          {},
	"fakemailgenerator.com":  {},
	"getairmail.com":         {},
	"getnada.com":            {},
	"guerrillamail.biz":      {},
	"guerrillamail.com":      {},
	"guerrillamail.de":       {},
	"guerrillamail.net":      {},
	"guerrillamail.org":      {},
	"harakirimail.com":       {},
	"inboxkitten.com":        {},
	"incognitomail.org":      {},
	"jetable.org":            {},
	"mail-temp.com":          {},
	"mail7.io":               {},
	"mailcatch.com":          {},
	"maildrop.cc":            {},
	"mailexpire.com":         {},
	"mailinator.com":         {},
	"mailinator.net":         {},
	"mailnesia.com":          {},
	"mailsac.com":            {},
	"mintemail.com":          {},
	"mohmal.com":             {},
	"mytemp.email":           {},
	"nada.email":             {},
	"nowmymail.com":          {},
	"sharklasers.com":        {},
	"spam4.me":               {},
	"spamgourmet.com":        {},
	"tempail.com":            {},
	"temp-mail.io":           {},
	"temp-mail.org":          {},
	"tempinbox.com":          {},
	"tempmail.dev":           {},
	"tempmail.net":           {},
	"tempmailo.com":          {},
	"tempr.email":            {},
	"throwawaymail.com":      {},
	"trash-mail.com":         {},
	"trashmail.com":          {},
	"trashmail.me":           {},
	"yopmail.com":            {},
	"yopmail.fr":             {},
	"yopmail.net":            {},
}
