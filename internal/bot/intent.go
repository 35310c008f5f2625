package bot

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"housebot/server/internal/geometry"
)

// IntentKind is what a text message asks the bot to do.
type IntentKind int

const (
	IntentUnknown IntentKind = iota
	IntentStart
	IntentCancel
	IntentAskCoordinates
	IntentAskAddress
	IntentAskLocation
	IntentCompare
	IntentHistory
	IntentTop
	IntentDistribution
	IntentAboutRating
	IntentAbout
	IntentAddress
	IntentEmptyAddress
	IntentCoordinates
	IntentBadCoordinates
)

func (k IntentKind) String() string {
	switch k {
	case IntentStart:
		return "start"
	case IntentCancel:
		return "cancel"
	case IntentAskCoordinates:
		return "ask_coordinates"
	case IntentAskAddress:
		return "ask_address"
	case IntentAskLocation:
		return "ask_location"
	case IntentCompare:
		return "compare"
	case IntentHistory:
		return "history"
	case IntentTop:
		return "top"
	case IntentDistribution:
		return "distribution"
	case IntentAboutRating:
		return "about_rating"
	case IntentAbout:
		return "about"
	case IntentAddress:
		return "address"
	case IntentEmptyAddress:
		return "empty_address"
	case IntentCoordinates:
		return "coordinates"
	case IntentBadCoordinates:
		return "bad_coordinates"
	default:
		return "unknown"
	}
}

// Intent is a classified text message. Only the fields of its kind are set.
type Intent struct {
	Kind      IntentKind
	Address   string
	Latitude  float64
	Longitude float64
	Radius    float64
}

// Command reports whether the intent is a slash command or a menu button.
// Commands are handled even while a comparison is open.
func (i Intent) Command() bool {
	switch i.Kind {
	case IntentUnknown, IntentAddress, IntentEmptyAddress, IntentCoordinates, IntentBadCoordinates:
		return false
	default:
		return true
	}
}

const addressPrefix = "адрес:"

var (
	buttons = map[string]IntentKind{
		ButtonCoordinates:  IntentAskCoordinates,
		ButtonAddress:      IntentAskAddress,
		ButtonLocation:     IntentAskLocation,
		ButtonCompare:      IntentCompare,
		ButtonHistory:      IntentHistory,
		ButtonTop:          IntentTop,
		ButtonDistribution: IntentDistribution,
		ButtonAboutRating:  IntentAboutRating,
		ButtonAbout:        IntentAbout,
		ButtonCancel:       IntentCancel,
	}

	slashCommands = map[string]IntentKind{
		"/start":  IntentStart,
		"/cancel": IntentCancel,
	}

	coordSeparator = regexp.MustCompile(`\s*,\s*|\s+`)
)

// Classify maps a trimmed text message to an intent.
func Classify(text string) Intent {
	text = strings.TrimSpace(text)

	if kind, ok := buttons[text]; ok {
		return Intent{Kind: kind}
	}
	if strings.HasPrefix(text, "/") {
		if kind, ok := slashCommands[commandName(text)]; ok {
			return Intent{Kind: kind}
		}
	}

	if strings.HasPrefix(strings.ToLower(text), addressPrefix) {
		addr := strings.TrimSpace(string([]rune(text)[len([]rune(addressPrefix)):]))
		if addr == "" {
			return Intent{Kind: IntentEmptyAddress}
		}
		return Intent{Kind: IntentAddress, Address: addr}
	}

	return classifyCoordinates(text)
}

// commandName strips arguments and the @botname suffix from a slash command.
func commandName(text string) string {
	name := strings.Fields(text)[0]
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	return strings.ToLower(name)
}

// classifyCoordinates accepts "lat, lon" or "lat, lon, radius" separated by
// commas or whitespace. Two or three tokens that do not parse are reported
// as bad coordinates; any other token count is not a coordinate attempt.
func classifyCoordinates(text string) Intent {
	var tokens []string
	for _, tok := range coordSeparator.Split(text, -1) {
		if tok = strings.Trim(tok, ","); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) < 2 || len(tokens) > 3 {
		return Intent{Kind: IntentUnknown}
	}

	values := make([]float64, len(tokens))
	for i, tok := range tokens {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Intent{Kind: IntentBadCoordinates}
		}
		values[i] = v
	}

	radius := geometry.DefaultRadius
	if len(values) == 3 {
		radius = values[2]
	}
	return Intent{
		Kind:      IntentCoordinates,
		Latitude:  values[0],
		Longitude: values[1],
		Radius:    radius,
	}
}
