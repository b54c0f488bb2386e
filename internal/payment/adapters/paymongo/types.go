package paymongo

type billing struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type lineItem struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Quantity    int64  `json:"quantity"`
}

type checkoutCreateRequest struct {
	Data struct {
		Attributes checkoutAttributes `json:"attributes"`
	} `json:"data"`
}

type checkoutAttributes struct {
	Billing            billing           `json:"billing"`
	LineItems          []lineItem        `json:"line_items"`
	PaymentMethodTypes []string          `json:"payment_method_types"`
	Description        string            `json:"description,omitempty"`
	SendEmailReceipt   bool              `json:"send_email_receipt"`
	ShowDescription    bool              `json:"show_description"`
	ShowLineItems      bool              `json:"show_line_items"`
	SuccessURL         string            `json:"success_url,omitempty"`
	CancelURL          string            `json:"cancel_url,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

type sessionResource struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Billing     billing           `json:"billing"`
		CheckoutURL string            `json:"checkout_url"`
		Description string            `json:"description"`
		LineItems   []lineItem        `json:"line_items"`
		Metadata    map[string]any    `json:"metadata"`
		Status      string            `json:"status"`
		PaidAt      int64             `json:"paid_at"`
		Payments    []paymentResource `json:"payments"`
	} `json:"attributes"`
}

type paymentResource struct {
	ID         string `json:"id"`
	Attributes struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Status   string `json:"status"`
		PaidAt   int64  `json:"paid_at"`
	} `json:"attributes"`
}

type webhookEvent struct {
	Data struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			Type string `json:"type"`
			Data struct {
				ID   string `json:"id"`
				Type string `json:"type"`
			} `json:"data"`
		} `json:"attributes"`
	} `json:"data"`
}
