// prompt_defaults.go - Default free-form prompts per document type

package ai

import "github.com/bosocmputer/document_extract_gemini/internal/model"

// DefaultPrompt returns the built-in prompt for a document type, or "" when
// the type has none.
func DefaultPrompt(docType model.DocumentType) string {
	return defaultPrompts[docType]
}

var defaultPrompts = map[model.DocumentType]string{
	model.DocumentInvoice: `この画像を「請求書」として読み取り、以下の情報を JSON 形式のリストで出力してください。
ページ内に複数の請求書がある場合や、複数ページの場合は、すべてリスト化してください。

【重要：会社ごとの特殊ルール（最優先）】
1. **「株式会社グラフィッククリエーション」の場合：**
   - 「今回発生額（current_billing_amount）」には、明細行にある「税抜御買上額」と「消費税額等」を足した合計値を入れてください。（※一番右の「今回御請求額」ではありません）

2. **「戸田工業株式会社」の場合：**
   - 「今回発生額（current_billing_amount）」には、「今回お買上高」欄の中にある「合計金額」を入れてください。（※右端の「今回ご請求高」ではありません）

3. **その他の会社（基本ルール）：**
   - 「前回請求額」 - 「入金額」 = 「繰越額」 の関係が成り立つ場所を探してください。
   - 「今回発生額（current_billing_amount）」は、今回新しく発生した「合計請求金額（税込）」または「今回売上高」を抽出してください。
   - 都度払い（スポット）で前回額などの記載がない場合は、0 または null にしてください。

【出力項目】
Markdown 記法は禁止。純粋な JSON テキストのみ出力すること。
ルート要素は "invoices" という配列にする。

{
  "invoices": [
    {
      "supplier": "請求元の会社名",
      "issue_date": "請求書発行日（YYYY/MM/DD 形式、なければ null）",
      "closing_date": "締日（YYYY/MM/DD 形式、なければ null）",
      "previous_balance": "前回請求額（数値のみ、なければ 0）",
      "payment_amount": "入金額（数値のみ、なければ 0）",
      "carried_over_amount": "繰越額（数値のみ、なければ 0）",
      "current_billing_amount": "今回発生額（ルールに基づいて抽出）"
    }
  ]
}`,
	model.DocumentDelivery: "以下のPDF画像は納品書です。以下の情報を抽出してJSON形式で出力してください：\n" +
		"- 納品書番号\n" +
		"- 納品日\n" +
		"- 納品元（会社名、住所、電話番号）\n" +
		"- 納品先（会社名、住所）\n" +
		"- 明細（品名、数量、単価、金額）のリスト\n" +
		"- 合計金額\n" +
		"- 備考\n" +
		"\n" +
		"出力形式:\n" +
		"```json\n" +
		"{\n" +
		"  \"delivery_number\": \"\",\n" +
		"  \"delivery_date\": \"\",\n" +
		"  \"vendor\": {\"name\": \"\", \"address\": \"\", \"phone\": \"\"},\n" +
		"  \"client\": {\"name\": \"\", \"address\": \"\"},\n" +
		"  \"items\": [{\"name\": \"\", \"quantity\": 0, \"unit_price\": 0, \"amount\": 0}],\n" +
		"  \"total\": 0,\n" +
		"  \"remarks\": \"\"\n" +
		"}\n" +
		"```",
}
