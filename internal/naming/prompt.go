package naming

const productPrompt = `Normalize the following product name taken from an invoice.
Remove brand names, pack sizes, units of measure and plural forms. Return only the generic product name in singular form, with no explanation and no punctuation.

Examples:
- "Mascarillas quirúrgicas IIR caja de 50 unidades" -> "Mascarilla quirúrgica"
- "Guantes de latex talla M" -> "Guante de látex"
- "Batas desechables azules" -> "Bata desechable"
- "Gel hidroalcoholico 500ml" -> "Gel hidroalcohólico"
- "Lapiz HB Staedtler" -> "Lápiz"
- "Ordenador portatil HP Pavilion" -> "Ordenador portátil"

Product name: %s
Normalized name:`
