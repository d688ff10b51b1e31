package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/user/mlbot/internal/types"
	"github.com/user/mlbot/pkg/mercadolibre"
)

// BotName is used in status and confirmation messages.
var BotName = "MLBot"

const dateLayout = "02/01/2006 15:04"

func text(s string) types.OutboundMessage {
	return types.OutboundMessage{Text: s}
}

// Menu lists the available commands.
func Menu() types.OutboundMessage {
	var b strings.Builder
	b.WriteString(Escape("|👋| Estos son los comandos disponibles:") + "\n\n")
	entries := []struct{ cmd, desc string }{
		{"/productinfo", "Muestra información de tus productos."},
		{"/checksales", "Revisa las últimas ventas concretadas."},
		{"/checkquestions", "Muestra las preguntas pendientes."},
		{"/responder (ID)", "Responde una pregunta específica por su ID."},
		{"/setstock (ID) (Cantidad)", "Actualiza el stock de un producto."},
		{"/checkshipment (ID)", "Consulta el estado de un envío."},
		{"/status", "Verifica el estado de " + BotName + "."},
	}
	for i, e := range entries {
		b.WriteString(Bold("|"+e.cmd+"|") + " " + Escape("- "+e.desc))
		if i < len(entries)-1 {
			b.WriteString("\n")
		}
	}
	return text(b.String())
}

// Status reports liveness and the credential state without refreshing it.
func Status(cred *types.Credential, now time.Time) types.OutboundMessage {
	var b strings.Builder
	b.WriteString(Escape("|✅| " + BotName + " está activo y funcionando correctamente."))
	b.WriteString("\n\n")
	switch {
	case cred == nil:
		b.WriteString(Escape("|🔗| Mercado Libre: sin vincular."))
	case cred.ExpiresAt.After(now):
		b.WriteString(Escape(fmt.Sprintf("|🔗| Mercado Libre: vinculado (cuenta %s), el token vence el %s.",
			cred.AccountID, cred.ExpiresAt.Format(dateLayout))))
	default:
		b.WriteString(Escape(fmt.Sprintf("|🔗| Mercado Libre: vinculado (cuenta %s), el token venció y se renovará en el próximo uso.",
			cred.AccountID)))
	}
	return text(b.String())
}

// AuthRequired asks the operator to link (or relink) the account.
func AuthRequired(authURL string) types.OutboundMessage {
	msg := Escape("|⚠️| ") + Bold("Error de autenticación") + Escape(".") + "\n" +
		Escape("Necesitás vincular tu cuenta de Mercado Libre primero.")
	if authURL != "" {
		msg += " " + Link("Vincular cuenta", authURL)
	} else {
		msg += " " + Escape("Visitá la página principal de tu bot para hacerlo.")
	}
	return text(msg)
}

// Linked confirms a successful authorization.
func Linked() types.OutboundMessage {
	return text(Escape("|✅| ¡" + BotName + " vinculado correctamente a Mercado Libre!"))
}

// Usage explains the expected command format.
func Usage(usage string) types.OutboundMessage {
	return text(Escape("|⚠️| Usá el formato: ") + Code(usage))
}

// Unrecognized points the operator at the menu.
func Unrecognized() types.OutboundMessage {
	return text(Escape("|🤔| Comando no reconocido. Enviá /menu para ver la lista de comandos."))
}

// UnrecognizedButton is sent for a button payload the bot does not know.
func UnrecognizedButton() types.OutboundMessage {
	return text(Escape("|🤔| Acción no reconocida. Enviá /menu para ver la lista de comandos."))
}

// Failure is the generic upstream error reply.
func Failure() types.OutboundMessage {
	return text(Escape("|❌| Hubo un error al procesar tu solicitud. Por favor, revisá los logs del servidor."))
}

// AnswerPrompt asks for the answer text to a question.
func AnswerPrompt(questionID string) types.OutboundMessage {
	return text(Escape("|✍️| Entendido. Respondiendo a la pregunta ") + Code(questionID) + Escape(".") + "\n" +
		Escape("Ahora, escribí tu respuesta y enviala."))
}

// AnswerSent confirms a posted answer.
func AnswerSent() types.OutboundMessage {
	return text(Escape("|✅| Tu respuesta ha sido enviada a Mercado Libre."))
}

// AnswerFailed reports a failed answer. reason may be empty.
func AnswerFailed(reason string) types.OutboundMessage {
	msg := "|❌| Error al enviar la respuesta."
	if reason != "" {
		msg = "|❌| Error al enviar la respuesta: " + reason + "."
	}
	return text(Escape(msg))
}

// Products lists item details.
func Products(items []mercadolibre.Item, total int) types.OutboundMessage {
	if len(items) == 0 {
		return text(Escape("|📦| No tenés publicaciones activas en este momento."))
	}
	var b strings.Builder
	header := fmt.Sprintf("|📦| Información de tus %d productos activos", len(items))
	if total > len(items) {
		header += fmt.Sprintf(" (de %d)", total)
	}
	b.WriteString(Escape(header+":") + "\n\n")
	for i, item := range items {
		fmt.Fprintf(&b, "*%d\\.* %s\n", i+1, Bold(item.Title))
		b.WriteString("   " + Bold("|ID|:") + " " + Code(item.ID) + "\n")
		b.WriteString("   " + Bold("|Precio|:") + " " + Amount(item.CurrencyID, item.Price) + "\n")
		b.WriteString("   " + Bold("|Stock|:") + " " + Int(item.AvailableQuantity) +
			" " + Escape("|") + " " + Bold("|Ventas|:") + " " + Int(item.SoldQuantity) + "\n")
		if item.Permalink != "" {
			b.WriteString("   " + Link("Ver producto", item.Permalink) + "\n")
		}
		b.WriteString("\n")
	}
	return text(strings.TrimRight(b.String(), "\n"))
}

// Sales lists recent orders.
func Sales(orders []mercadolibre.Order) types.OutboundMessage {
	if len(orders) == 0 {
		return text(Escape("|✅| No tenés ventas recientes."))
	}
	var b strings.Builder
	b.WriteString(Escape(fmt.Sprintf("|🛒| Últimas %d ventas:", len(orders))) + "\n\n")
	for _, o := range orders {
		b.WriteString(Bold("|ID|:") + " " + Code(Int(o.ID)) + "\n")
		b.WriteString("   " + Bold("|Total|:") + " " + Amount(o.CurrencyID, o.TotalAmount) + "\n")
		if o.Buyer.Nickname != "" {
			b.WriteString("   " + Bold("|Comprador|:") + " " + Escape(o.Buyer.Nickname) + "\n")
		}
		b.WriteString("   " + Bold("|Fecha|:") + " " + Escape(formatDate(o)) + "\n")
		if id := o.ShipmentID(); id != 0 {
			b.WriteString("   " + Bold("|Envío|:") + " " + Code("/checkshipment "+Int(id)) + "\n")
		}
		b.WriteString("\n")
	}
	return text(strings.TrimRight(b.String(), "\n"))
}

func formatDate(o mercadolibre.Order) string {
	t := o.CreatedAt()
	if t.IsZero() {
		return o.DateCreated
	}
	return t.Format(dateLayout)
}

// Questions lists unanswered questions.
func Questions(questions []mercadolibre.Question) types.OutboundMessage {
	if len(questions) == 0 {
		return text(Escape("|✅| No tenés preguntas pendientes para responder."))
	}
	var b strings.Builder
	b.WriteString(Escape("|💬| Preguntas sin responder:") + "\n\n")
	for _, q := range questions {
		id := Int(q.ID)
		b.WriteString(Bold("ID de pregunta:") + " " + Code(id) + "\n")
		b.WriteString(Bold("En el producto:") + " " + Code(q.ItemID) + "\n")
		b.WriteString("   " + Escape("- ") + Italic("\""+q.Text+"\"") + "\n")
		b.WriteString(Bold("Para responder:") + " " + Code("/responder "+id) + "\n\n")
	}
	return text(strings.TrimRight(b.String(), "\n"))
}

// StockUpdated echoes the new quantity.
func StockUpdated(itemID string, quantity int) types.OutboundMessage {
	return text(Escape("|✅| Stock de ") + Code(itemID) + Escape(" actualizado a ") + Bold(Int(quantity)) + Escape("."))
}

// StockFailed reports a rejected stock update.
func StockFailed(itemID string) types.OutboundMessage {
	return text(Escape("|❌| No se pudo actualizar el stock de ") + Code(itemID) + Escape(". Revisá el ID e intentá de nuevo."))
}

// Shipment describes a shipment.
func Shipment(s *mercadolibre.Shipment) types.OutboundMessage {
	var b strings.Builder
	b.WriteString(Escape("|🚚| Envío ") + Code(Int(s.ID)) + "\n\n")
	b.WriteString(Bold("Estado:") + " " + Escape(orDash(s.Status)) + "\n")
	b.WriteString(Bold("Subestado:") + " " + Escape(orDash(s.Substatus)) + "\n")
	b.WriteString(Bold("Seguimiento:") + " " + trackingNumber(s.TrackingNumber))
	if s.TrackingURL != "" {
		b.WriteString("\n" + Link("Seguir envío", s.TrackingURL))
	}
	return text(b.String())
}

func trackingNumber(n string) string {
	if n == "" {
		return Escape("-")
	}
	return Code(n)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// ShipmentFailed reports a failed shipment lookup.
func ShipmentFailed(shipmentID string) types.OutboundMessage {
	return text(Escape("|❌| No se pudo obtener el envío ") + Code(shipmentID) + Escape("."))
}

// QuestionNotification announces a new buyer question with an answer button.
func QuestionNotification(q *mercadolibre.Question, itemTitle string) types.OutboundMessage {
	id := Int(q.ID)
	product := itemTitle
	if product == "" {
		product = q.ItemID
	}
	msg := Bold("|❓| Nueva pregunta recibida:") + "\n\n" +
		Bold("Producto:") + " " + Escape(product) + "\n" +
		Bold("Pregunta:") + " " + Italic("\""+q.Text+"\"") + "\n\n" +
		Escape("Podés responder esta pregunta directamente usando: ") + Code("/responder "+id)
	return types.OutboundMessage{
		Text:    msg,
		Buttons: []types.Button{{Text: "Responder pregunta", Data: types.AnswerCallbackData(id)}},
	}
}

// OrderNotification announces a new sale.
func OrderNotification(o *mercadolibre.Order) types.OutboundMessage {
	var b strings.Builder
	b.WriteString(Bold("|🛒| ¡Nueva venta recibida!") + "\n\n")
	b.WriteString(Bold("ID de venta:") + " " + Code(Int(o.ID)) + "\n")
	b.WriteString(Bold("Total:") + " " + Amount(o.CurrencyID, o.TotalAmount) + "\n")
	b.WriteString(Bold("Comprador:") + " " + Escape(orDash(o.Buyer.Nickname)) + "\n")
	b.WriteString(Bold("Estado:") + " " + Escape(orDash(o.Status)))
	if id := o.ShipmentID(); id != 0 {
		b.WriteString("\n\n" + Escape("Seguí el envío con: ") + Code("/checkshipment "+Int(id)))
	}
	return text(b.String())
}

// GenericNotification reports a topic the bot has no template for.
func GenericNotification(topic, resource string) types.OutboundMessage {
	return text(Escape("|📩| Notificación de Mercado Libre") + "\n\n" +
		Bold("Tópico:") + " " + Code(topic) + "\n" +
		Bold("Recurso:") + " " + Code(resource))
}
