package templates

// DefaultCatalog is the stock Spanish wording for every message the
// conversation engine sends.
func DefaultCatalog() Catalog {
	return Catalog{
		"greeting":                "¡Hola! 👋 Soy tu asesor de compras a crédito. ¿Eres cliente de nuestro servicio de gas natural?",
		"greeting_returning":      "¡Hola de nuevo{{with .name}}, {{.}}{{end}}!{{with .category}} La última vez estuviste viendo {{.}}.{{end}} ¿Sigues siendo cliente del servicio de gas natural?",
		"confirm_client_reprompt": "Para ayudarte necesito saber: ¿eres cliente del servicio de gas natural? Responde sí o no 🙂",
		"not_client":              "Gracias por escribirnos. Por ahora el financiamiento es solo para clientes del servicio de gas natural. ¡Que tengas un buen día!",
		"ask_dni":                 "¡Genial! Por favor envíame tu número de DNI (8 dígitos) para revisar tu línea de crédito.",
		"ask_dni_again":           "Para continuar necesito tu DNI de 8 dígitos.",
		"dni_invalid":             "Ese número no parece un DNI válido. Recuerda que debe tener 8 dígitos.",
		"dni_already_attempted":   "Ya revisamos ese DNI. Si tienes otro DNI de un titular del servicio, envíamelo por favor.",
		"dni_patience":            "No te preocupes, tómate tu tiempo. Cuando tengas tu DNI a la mano me lo envías por aquí.",
		"checking_dni":            "Un momento, estoy revisando tu línea de crédito... ⏳",
		"eligible_offer":          "¡Buenas noticias{{with .name}}, {{.}}{{end}}! Tienes una línea de crédito de S/ {{.credit}}. ¿Qué te gustaría comprar? Tenemos celulares, televisores, refrigeradoras y más.",
		"welcome_back_offer":      "¡Qué gusto verte{{with .name}}, {{.}}{{end}}! Tu línea de crédito de S/ {{.credit}} sigue disponible. ¿Qué te gustaría ver hoy?",
		"ask_age":                 "¡Tienes línea de crédito{{with .name}}, {{.}}{{end}}! Antes de continuar, ¿me confirmas tu edad?",
		"ask_age_numeric":         "Por favor indícame tu edad en números, por ejemplo: 30.",
		"age_policy_rejection":    "Gracias por tu interés. Por políticas de financiamiento, este crédito está disponible a partir de los {{.min_age}} años.",
		"not_eligible_retry":      "Lo siento, no encontramos una línea de crédito disponible con ese DNI. ¿Tienes el DNI de otro titular del servicio en tu hogar?",
		"not_eligible_goodbye":    "Lamentablemente no encontramos una línea de crédito disponible. ¡Gracias por escribirnos!",
		"ask_other_dni":           "Perfecto, envíame el DNI del titular del servicio (8 dígitos).",
		"dni_retry_reprompt":      "¿Quieres intentar con otro DNI? Responde sí o envíame el número directamente.",
		"outage_wait":             "Estamos teniendo un problema para consultar tu crédito{{with .name}}, {{.}}{{end}}. Apenas se restablezca el sistema te escribimos con tu respuesta 🙏",
		"handoff":                 "Te voy a comunicar con uno de nuestros asesores, en breve te escribe.",
		"products_intro":          "Estos son algunos {{.category}} que puedes llevar con tu línea de S/ {{.credit}}:",
		"no_products":             "Por ahora no tenemos {{.category}} dentro de tu línea de S/ {{.credit}}. ¿Te gustaría ver otra categoría?",
		"category_menu":           "Estas son nuestras categorías: {{.categories}}. ¿Cuál te interesa?",
		"which_product":           "¡Excelente elección! ¿Cuál de los productos que te mostré quieres llevar?",
		"confirm_product":         "El {{.product}} está a S/ {{.price}}. ¿Lo quieres llevar?",
		"purchase_confirmed":      "¡Listo{{with .name}}, {{.}}{{end}}! Registramos tu pedido de {{.product}} por S/ {{.price}}. Un asesor te contactará para coordinar la entrega.",
		"rejection_goodbye":       "Entiendo{{with .name}}, {{.}}{{end}}. Si más adelante quieres ver algo, aquí estaré. ¡Gracias!",
		"objection_price":         "Entiendo. Recuerda que puedes pagar en cuotas con tu recibo de gas. ¿Te muestro opciones más económicas dentro de tu línea de S/ {{.credit}}?",
		"objection_alternative":   "{{with index . \"product\"}}Una opción más económica es el {{.}}{{with index $ \"price\"}} a S/ {{.}}{{end}}.{{else}}Tenemos opciones desde precios más bajos dentro de tu línea de S/ {{.credit}}.{{end}} ¿Te interesa?",
		"fallback_help":           "Puedo ayudarte a elegir un producto para comprar a crédito. ¿Qué estás buscando?",
		"offer_again":             "¡Claro{{with .name}}, {{.}}{{end}}! Tu línea de S/ {{.credit}} sigue disponible. ¿Qué te gustaría ver?",
		"backlog_apology":         "Disculpa la demora en responder. Ya estoy contigo 🙌",
	}
}
