package protocol

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// Action дискриминатор протокольного сообщения: определяет назначение
// сообщения между медиатором и участниками сделки.
// Набор значений закрыт; добавление нового тега меняет версию протокола.
type Action uint8

const (
	// ActionUnknown зарезервирован под нераспознанные теги и никогда не кодируется.
	ActionUnknown Action = iota
	ActionOrder
	ActionTakeSell
	ActionTakeBuy
	ActionPayInvoice
	ActionFiatSent
	ActionRelease
	ActionCancel
	ActionCooperativeCancelInitiatedByYou
	ActionCooperativeCancelInitiatedByPeer
	ActionDisputeInitiatedByYou
	ActionDisputeInitiatedByPeer
	ActionCooperativeCancelAccepted
	ActionBuyerInvoiceAccepted
	ActionSaleCompleted
	ActionPurchaseCompleted
	ActionHoldInvoicePaymentAccepted
	ActionHoldInvoicePaymentSettled
	ActionHoldInvoicePaymentCanceled
	ActionWaitingSellerToPay
	ActionWaitingBuyerInvoice
	ActionAddInvoice
	ActionBuyerTookOrder
	ActionRateUser
	ActionCantDo
	ActionReceived
	ActionDispute
	ActionAdminCancel
	ActionAdminSettle
	ActionAdminAddSolver
	ActionAdminTakeDispute

	actionMax
)

// ErrUnknownAction возвращается при декодировании значения вне набора тегов.
var ErrUnknownAction = errors.New("unknown action")

// UnknownActionError содержит исходное значение, которое не удалось распознать.
type UnknownActionError struct {
	Value string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", e.Value)
}

func (e *UnknownActionError) Is(target error) bool { return target == ErrUnknownAction }

var actionNames = [actionMax]string{
	ActionOrder:                            "order",
	ActionTakeSell:                         "take-sell",
	ActionTakeBuy:                          "take-buy",
	ActionPayInvoice:                       "pay-invoice",
	ActionFiatSent:                         "fiat-sent",
	ActionRelease:                          "release",
	ActionCancel:                           "cancel",
	ActionCooperativeCancelInitiatedByYou:  "cooperative-cancel-initiated-by-you",
	ActionCooperativeCancelInitiatedByPeer: "cooperative-cancel-initiated-by-peer",
	ActionDisputeInitiatedByYou:            "dispute-initiated-by-you",
	ActionDisputeInitiatedByPeer:           "dispute-initiated-by-peer",
	ActionCooperativeCancelAccepted:        "cooperative-cancel-accepted",
	ActionBuyerInvoiceAccepted:             "buyer-invoice-accepted",
	ActionSaleCompleted:                    "sale-completed",
	ActionPurchaseCompleted:                "purchase-completed",
	ActionHoldInvoicePaymentAccepted:       "hold-invoice-payment-accepted",
	ActionHoldInvoicePaymentSettled:        "hold-invoice-payment-settled",
	ActionHoldInvoicePaymentCanceled:       "hold-invoice-payment-canceled",
	ActionWaitingSellerToPay:               "waiting-seller-to-pay",
	ActionWaitingBuyerInvoice:              "waiting-buyer-invoice",
	ActionAddInvoice:                       "add-invoice",
	ActionBuyerTookOrder:                   "buyer-took-order",
	ActionRateUser:                         "rate-user",
	ActionCantDo:                           "cant-do",
	ActionReceived:                         "received",
	ActionDispute:                          "dispute",
	ActionAdminCancel:                      "admin-cancel",
	ActionAdminSettle:                      "admin-settle",
	ActionAdminAddSolver:                   "admin-add-solver",
	ActionAdminTakeDispute:                 "admin-take-dispute",
}

var actionByName = map[string]Action{}

func init() {
	for a := ActionOrder; a < actionMax; a++ {
		actionByName[actionNames[a]] = a
	}
}

// Actions возвращает все теги протокола.
func Actions() []Action {
	res := make([]Action, 0, actionMax-1)
	for a := ActionOrder; a < actionMax; a++ {
		res = append(res, a)
	}
	return res
}

// IsValid сообщает, входит ли значение в набор тегов.
func (a Action) IsValid() bool { return a > ActionUnknown && a < actionMax }

func (a Action) String() string {
	if !a.IsValid() {
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
	return actionNames[a]
}

// Encode возвращает проводное представление тега.
func Encode(a Action) (string, error) {
	if !a.IsValid() {
		return "", &UnknownActionError{Value: a.String()}
	}
	return actionNames[a], nil
}

// Decode разбирает проводное представление. Для значений вне набора
// возвращается *UnknownActionError; это штатная ситуация, сообщение
// следует пропустить.
func Decode(s string) (Action, error) {
	if a, ok := actionByName[s]; ok {
		return a, nil
	}
	return ActionUnknown, &UnknownActionError{Value: s}
}

func (a Action) MarshalText() ([]byte, error) {
	s, err := Encode(a)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func (a *Action) UnmarshalText(data []byte) error {
	v, err := Decode(string(data))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (a Action) MarshalJSON() ([]byte, error) {
	s, err := Encode(a)
	if err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return a.UnmarshalText([]byte(s))
}

// GormDataType хранит тег строкой, а не числом.
func (Action) GormDataType() string { return "string" }

// Value сохраняет тег в базе строкой.
func (a Action) Value() (driver.Value, error) {
	return Encode(a)
}

// Scan читает тег из базы.
func (a *Action) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	default:
		return fmt.Errorf("scan action: unsupported type %T", src)
	}
}
