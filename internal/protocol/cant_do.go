package protocol

// CantDoReason причина отказа медиатора выполнить запрос участника
type CantDoReason string

const (
	CantDoInvalidSignature     CantDoReason = "invalid-signature"
	CantDoInvalidTradeIndex    CantDoReason = "invalid-trade-index"
	CantDoInvalidAmount        CantDoReason = "invalid-amount"
	CantDoInvalidInvoice       CantDoReason = "invalid-invoice"
	CantDoInvalidPeer          CantDoReason = "invalid-peer"
	CantDoInvalidRating        CantDoReason = "invalid-rating"
	CantDoInvalidTextMessage   CantDoReason = "invalid-text-message"
	CantDoInvalidOrderKind     CantDoReason = "invalid-order-kind"
	CantDoInvalidOrderStatus   CantDoReason = "invalid-order-status"
	CantDoInvalidPubkey        CantDoReason = "invalid-pubkey"
	CantDoInvalidParameters    CantDoReason = "invalid-parameters"
	CantDoOrderAlreadyCanceled CantDoReason = "order-already-canceled"
	CantDoIsNotYourOrder       CantDoReason = "is-not-your-order"
	CantDoNotAllowedByStatus   CantDoReason = "not-allowed-by-status"
	CantDoOutOfRangeFiatAmount CantDoReason = "out-of-range-fiat-amount"
	CantDoOutOfRangeSatsAmount CantDoReason = "out-of-range-sats-amount"
	CantDoIsNotYourDispute     CantDoReason = "is-not-your-dispute"
	CantDoDisputeCreationError CantDoReason = "dispute-creation-error"
	CantDoNotFound             CantDoReason = "not-found"
	CantDoInvalidDisputeStatus CantDoReason = "invalid-dispute-status"
	CantDoInvalidAction        CantDoReason = "invalid-action"
	CantDoPendingOrderExists   CantDoReason = "pending-order-exists"
	CantDoInvalidFiatCurrency  CantDoReason = "invalid-fiat-currency"
	CantDoPaymentFailed        CantDoReason = "payment-failed"
)
