package extraction

// invoicePrompt tells the vision model which fields to return and in what
// shape.
const invoicePrompt = `You are an expert invoice data extractor. Analyze the invoice image carefully and extract the following details:

1. Vendor information (name, GSTIN, address)
2. Customer information (name, GSTIN, address)
3. Invoice details (number, date, due date, PO number)
4. Line items (description, HSN/SAC code, quantity, rate, tax percentage, tax amount, amount)
5. Financial details (subtotal, tax amount, discount, total amount)
6. Other details (place of supply, terms)

Format your response as a JSON object with these fields. Use the following structure:
{
  "vendor": {
    "name": "Vendor Name",
    "gstin": "GSTIN Number",
    "address": "Vendor Address"
  },
  "customer": {
    "name": "Customer Name",
    "gstin": "GSTIN Number",
    "address": "Customer Address"
  },
  "invoice_number": "INV-12345",
  "invoice_date": "YYYY-MM-DD",
  "due_date": "YYYY-MM-DD",
  "po_number": "PO-12345",
  "place_of_supply": "Place",
  "line_items": [
    {
      "description": "Item description",
      "hsn_sac": "HSN/SAC code",
      "quantity": 1,
      "rate": 100.00,
      "tax_percentage": 18,
      "tax_amount": 18.00,
      "amount": 118.00
    }
  ],
  "subtotal": 100.00,
  "tax_amount": 18.00,
  "discount": 0.00,
  "total_amount": 118.00,
  "terms": "Payment terms"
}

If you can't find a value, use null. Be very precise and extract the exact values as they appear on the invoice.
For numeric fields (quantity, rate, tax_percentage, tax_amount, amount, subtotal, discount, total_amount),
ensure they are numeric values, not strings.`

const invoiceInstruction = "Extract all invoice data from this image as a structured JSON."
