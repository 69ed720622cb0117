package payment

// Wire types of the gateway and antifraud REST APIs.

type chargeCard struct {
	Number     string `json:"number"`
	HolderName string `json:"holder_name"`
	ExpMonth   string `json:"exp_month"`
	ExpYear    string `json:"exp_year"`
	CVV        string `json:"cvv"`
}

type wireAddress struct {
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zip_code"`
}

type chargeCreateRequest struct {
	Reference          string       `json:"reference"`
	Amount             string       `json:"amount"`
	Currency           string       `json:"currency"`
	Description        string       `json:"description,omitempty"`
	Card               *chargeCard  `json:"card,omitempty"`
	CardToken          string       `json:"card_token,omitempty"`
	Tokenize           bool         `json:"tokenize,omitempty"`
	BillingAddress     *wireAddress `json:"billing_address,omitempty"`
	AntifraudSessionID string       `json:"antifraud_session_id,omitempty"`
	CustomerID         string       `json:"customer_id,omitempty"`
}

const (
	chargeStatusApproved = "APPROVED"
	chargeStatusDeclined = "DECLINED"
)

type chargeResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	CardToken     string `json:"card_token,omitempty"`
	DeclineCode   string `json:"decline_code,omitempty"`
	DeclineReason string `json:"decline_reason,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type evaluateRequest struct {
	SessionID      string      `json:"session_id"`
	Reference      string      `json:"reference"`
	CustomerID     string      `json:"customer_id"`
	Amount         string      `json:"amount"`
	CardBIN        string      `json:"card_bin,omitempty"`
	CardLast4      string      `json:"card_last4,omitempty"`
	HolderName     string      `json:"holder_name,omitempty"`
	BillingAddress wireAddress `json:"billing_address"`
	Method         string      `json:"method"`
	IPAddress      string      `json:"ip_address,omitempty"`
}

const (
	decisionApprove = "APPROVE"
	decisionDeny    = "DENY"
	decisionReview  = "REVIEW"
)

type evaluateResponse struct {
	Decision  string  `json:"decision"`
	RiskScore float64 `json:"risk_score"`
	Reason    string  `json:"reason,omitempty"`
}
