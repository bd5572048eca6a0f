package extract

import "fmt"

const invoicePromptTemplate = `Extract the structured data of the following invoice. Return the result as a single JSON object with the keys:
- nombre_empresa (string): the issuing company
- numero_factura (string or number)
- fecha_emision (DD/MM/YYYY or similar; empty string if absent)
- productos (list of objects with the keys: nombre, cantidad, precio_unitario, total_por_producto)
- total_factura (number; empty if absent)

'nombre_empresa', 'numero_factura' and 'fecha_emision' must always be present.
Every object in 'productos' must have 'nombre', 'cantidad', 'precio_unitario' and 'total_por_producto'. Use an empty string or 0 for anything missing.
Do not include any other text, prose, or markdown.

Text:
%s
`

// BuildPrompt returns the extraction instruction for the invoice text.
func BuildPrompt(text string) string {
	return fmt.Sprintf(invoicePromptTemplate, text)
}
