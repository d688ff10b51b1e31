// Package command parses operator chat text into typed commands.
package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/user/mlbot/internal/types"
)

// Command is one of the variants below.
type Command interface {
	// Name is the command word without the leading slash.
	Name() string
	// Public commands do not need a marketplace credential.
	Public() bool
}

type (
	Start          struct{}
	Menu           struct{}
	Help           struct{}
	Status         struct{}
	ProductInfo    struct{}
	CheckSales     struct{}
	CheckQuestions struct{}

	// Respond starts the answer flow for a question.
	Respond struct{ QuestionID string }

	// SetStock sets the available quantity of an item.
	SetStock struct {
		ItemID   string
		Quantity int
	}

	// CheckShipment reports the status of a shipment.
	CheckShipment struct{ ShipmentID string }

	// Unknown is any text that is not a recognized command.
	Unknown struct{ Raw string }
)

func (Start) Name() string          { return "start" }
func (Menu) Name() string           { return "menu" }
func (Help) Name() string           { return "help" }
func (Status) Name() string         { return "status" }
func (ProductInfo) Name() string    { return "productinfo" }
func (CheckSales) Name() string     { return "checksales" }
func (CheckQuestions) Name() string { return "checkquestions" }
func (Respond) Name() string        { return "responder" }
func (SetStock) Name() string       { return "setstock" }
func (CheckShipment) Name() string  { return "checkshipment" }
func (Unknown) Name() string        { return "unknown" }

func (Start) Public() bool          { return true }
func (Menu) Public() bool           { return true }
func (Help) Public() bool           { return true }
func (Status) Public() bool         { return true }
func (ProductInfo) Public() bool    { return false }
func (CheckSales) Public() bool     { return false }
func (CheckQuestions) Public() bool { return false }
func (Respond) Public() bool        { return false }
func (SetStock) Public() bool       { return false }
func (CheckShipment) Public() bool  { return false }
func (Unknown) Public() bool        { return true }

// Usage strings shown when arguments are missing or invalid.
const (
	RespondUsage       = "/responder <ID_Pregunta>"
	SetStockUsage      = "/setstock <ID_Producto> <Cantidad>"
	CheckShipmentUsage = "/checkshipment <ID_Envio>"
)

// UsageError reports a known command with bad arguments.
type UsageError struct {
	Command string
	Usage   string
	Reason  string
}

func (e *UsageError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("/%s: %s (usage: %s)", e.Command, e.Reason, e.Usage)
	}
	return fmt.Sprintf("/%s: usage: %s", e.Command, e.Usage)
}

func (e *UsageError) Unwrap() error {
	return types.ErrMalformedCommand
}

// IsCommand reports whether text is addressed as a slash command.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// Parse turns message text into a Command. Text that is not a known
// command yields Unknown; a known command with bad arguments yields a
// *UsageError.
func Parse(text string) (Command, error) {
	trimmed := strings.TrimSpace(text)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return Unknown{Raw: text}, nil
	}

	word := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	// Group chats address commands as /menu@BotName.
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	args := fields[1:]

	switch word {
	case "start":
		return Start{}, nil
	case "menu":
		return Menu{}, nil
	case "help":
		return Help{}, nil
	case "status":
		return Status{}, nil
	case "productinfo":
		return ProductInfo{}, nil
	case "checksales":
		return CheckSales{}, nil
	case "checkquestions":
		return CheckQuestions{}, nil
	case "responder":
		if len(args) < 1 {
			return nil, &UsageError{Command: word, Usage: RespondUsage}
		}
		return Respond{QuestionID: args[0]}, nil
	case "setstock":
		return parseSetStock(args)
	case "checkshipment":
		if len(args) < 1 {
			return nil, &UsageError{Command: word, Usage: CheckShipmentUsage}
		}
		return CheckShipment{ShipmentID: args[0]}, nil
	default:
		return Unknown{Raw: text}, nil
	}
}

func parseSetStock(args []string) (Command, error) {
	if len(args) < 2 {
		return nil, &UsageError{Command: "setstock", Usage: SetStockUsage}
	}
	qty, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, &UsageError{Command: "setstock", Usage: SetStockUsage, Reason: "quantity must be an integer"}
	}
	if qty < 0 {
		return nil, &UsageError{Command: "setstock", Usage: SetStockUsage, Reason: "quantity must not be negative"}
	}
	return SetStock{ItemID: args[0], Quantity: qty}, nil
}
