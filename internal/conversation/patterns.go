package conversation

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// normalize lowercases, strips accents and collapses whitespace so the
// pattern sets below can be written without accent variants.
func normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

var (
	dniPattern = regexp.MustCompile(`(?:^|\D)(\d{8})(?:\D|$)`)
	// a run of 7 or 9+ digits: the customer tried to type an ID but got it wrong
	almostDNIPattern = regexp.MustCompile(`(?:^|\D)(\d{7}|\d{9,12})(?:\D|$)`)
	agePattern       = regexp.MustCompile(`\d+`)

	affirmativePattern = regexp.MustCompile(`^(si+|sip|claro|correcto|exacto|afirmativo|ok+|okey|okay|dale|ya|asi es|por supuesto|efectivamente|si soy|soy cliente|si, soy|yes)\b|^si[ ,.!]`)
	negativePattern    = regexp.MustCompile(`^(no+|nop|negativo|para nada|nunca)\b|no soy (cliente|usuario)|no tengo (gas|servicio|contrato)`)

	ackPattern      = regexp.MustCompile(`^(ok+|okey|okay|ya|listo|gracias|muchas gracias|vale|perfecto|bien|entendido|genial|de acuerdo|👍|🙏|👌|ok gracias|ya gracias)[.! ]*$`)
	stallPattern    = regexp.MustCompile(`\b(luego|despues|mas tarde|ahorita|en un rato|un momento|un rato|dame un (momento|minuto|segundo)|ya te (lo )?(envio|mando|paso)|te lo (envio|mando|paso)|espera(me)?)\b`)
	patiencePattern = regexp.MustCompile(`no (lo )?tengo (a la mano|aqui|conmigo|ahora)|no (me )?lo se de memoria|no lo recuerdo|no me acuerdo|tengo que buscar(lo)?|no encuentro mi dni`)

	purchasePattern    = regexp.MustCompile(`\b(lo quiero|la quiero|los quiero|me (lo |la )?llevo|lo compro|la compro|quiero (ese|esa|este|esta|el|la|comprar(lo|la)?)|me interesa (ese|esa|este|esta|el|la)|acepto|lo tomo|la tomo|quiero financiar(lo|la)?|separa(me|lo|la))\b`)
	rejectionPattern   = regexp.MustCompile(`\b(no me interesa|no quiero( nada)?|no gracias|ninguno|ninguna|no estoy interesad[oa]|no necesito|dejalo|olvidalo)\b`)
	pricePattern       = regexp.MustCompile(`\b(muy caro|caros?|caras?|carisim[oa]s?|costos[oa]s?|no me alcanza|no alcanza|precio alto|mas barato|mas economico|algo mas barato|sale mucho|cuesta (mucho|demasiado)|demasiado (caro|cara|costoso|plata|dinero)|no tengo (tanto|tanta plata|dinero)|cuotas? (muy )?alt[ao]s?)\b`)
	newPurchasePattern = regexp.MustCompile(`\b(quiero (otro|otra|algo mas|comprar)|tambien quiero|otra compra|comprar (otro|otra|algo mas)|ver (mas|otros) productos|que mas tienen)\b`)
	catalogPattern     = regexp.MustCompile(`\b(que (productos|cosas) tienen|que tienen|que venden|catalogo|categorias|que ofrecen|opciones|que hay)\b`)

	// "no es caro" reads as praise, not an objection
	negatedPricePattern = regexp.MustCompile(`\bno (es|esta|son|estan|sale|salen|me parece|me parecen|lo veo|la veo)( (tan|muy|nada))? (caros?|caras?|costos[oa]s?)\b`)

	ordinalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(primer[oa]?|1ro|1ra|opcion 1|el 1|la 1|numero 1)\b`),
		regexp.MustCompile(`\b(segund[oa]|2do|2da|opcion 2|el 2|la 2|numero 2)\b`),
		regexp.MustCompile(`\b(tercer[oa]?|3ro|3ra|opcion 3|el 3|la 3|numero 3)\b`),
	}
	lastPattern = regexp.MustCompile(`\b(ultim[oa])\b`)
)

// categoryKeywords maps catalog categories to the words customers use for them.
var categoryKeywords = []struct {
	category string
	pattern  *regexp.Regexp
}{
	{"celulares", regexp.MustCompile(`\b(celular(es)?|telefono|smartphone|movil|iphone|galaxy|redmi)\b`)},
	{"televisores", regexp.MustCompile(`\b(tele|televisor(es)?|tv|smart ?tv|pantalla)\b`)},
	{"refrigeradoras", regexp.MustCompile(`\b(refri|refrigeradora(s)?|refrigerador|nevera|congeladora)\b`)},
	{"lavadoras", regexp.MustCompile(`\b(lavadora(s)?|secadora)\b`)},
	{"cocinas", regexp.MustCompile(`\b(cocina(s)?|horno|hornillas?)\b`)},
	{"laptops", regexp.MustCompile(`\b(laptop(s)?|computadora|notebook|pc|compu)\b`)},
	{"colchones", regexp.MustCompile(`\b(colchon(es)?|cama)\b`)},
}

func extractDNI(msg string) (string, bool) {
	m := dniPattern.FindStringSubmatch(msg)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func looksLikeBadDNI(msg string) bool {
	return almostDNIPattern.MatchString(msg)
}

// extractAge returns the single small number in msg. Messages with several
// numbers or an ID-length number are not treated as an age.
func extractAge(msg string) (int, bool) {
	nums := agePattern.FindAllString(msg, -1)
	if len(nums) != 1 || len(nums[0]) > 3 {
		return 0, false
	}
	age, err := strconv.Atoi(nums[0])
	if err != nil || age <= 0 || age > 120 {
		return 0, false
	}
	return age, true
}

func matchCategory(s string) (string, bool) {
	for _, c := range categoryKeywords {
		if c.pattern.MatchString(s) {
			return c.category, true
		}
	}
	return "", false
}

func isAffirmative(s string) bool    { return affirmativePattern.MatchString(s) }
func isNegative(s string) bool       { return negativePattern.MatchString(s) }
func isAck(s string) bool            { return ackPattern.MatchString(s) }
func isStall(s string) bool          { return stallPattern.MatchString(s) }
func isPatience(s string) bool       { return patiencePattern.MatchString(s) }
func isPurchase(s string) bool       { return purchasePattern.MatchString(s) }
func isRejection(s string) bool      { return rejectionPattern.MatchString(s) }
func isNewPurchase(s string) bool    { return newPurchasePattern.MatchString(s) }
func isCatalogRequest(s string) bool { return catalogPattern.MatchString(s) }

func isPriceObjection(s string) bool {
	return pricePattern.MatchString(negatedPricePattern.ReplaceAllString(s, " "))
}
