package app

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mediator/internal/db"
	"mediator/internal/models"
	"mediator/internal/protocol"
	"mediator/internal/services"
)

func (m *Mediator) dispute(ctx context.Context, req *request) error {
	ord, err := m.loadOrder(ctx, req.kind.OrderID())
	if err != nil {
		return err
	}
	var flag string
	switch {
	case ord.IsBuyer(req.sender):
		flag = "buyer_dispute"
	case ord.IsSeller(req.sender):
		flag = "seller_dispute"
	default:
		return cantDo(protocol.CantDoIsNotYourOrder)
	}
	m.record(ctx, req, ord.ID)
	if ord.Status != protocol.StatusActive && ord.Status != protocol.StatusFiatSent {
		return cantDo(protocol.CantDoNotAllowedByStatus)
	}

	d := models.Dispute{
		OrderID:             ord.ID,
		Status:              models.DisputeStatusInitiated,
		OrderPreviousStatus: ord.Status,
		InitiatorPubkey:     req.sender,
	}
	if err := m.db.WithContext(ctx).Create(&d).Error; err != nil {
		m.log.Warn("create dispute", zap.String("order", ord.ID), zap.Error(err))
		return cantDo(protocol.CantDoDisputeCreationError)
	}
	upd := map[string]any{"status": protocol.StatusDispute, flag: true}
	if err := m.transition(ctx, ord, []protocol.Status{d.OrderPreviousStatus}, upd); err != nil {
		m.db.WithContext(ctx).Delete(&d)
		return err
	}
	id := d.ID
	counterpart := ord.Counterpart(req.sender)
	m.sendDispute(ctx, req.sender, ord, protocol.ActionDisputeInitiatedByYou, &protocol.Payload{Dispute: &id})
	m.sendDispute(ctx, counterpart, ord, protocol.ActionDisputeInitiatedByPeer, &protocol.Payload{Dispute: &id})
	return nil
}

func (m *Mediator) isAdmin(pubkey string) bool {
	return pubkey != "" && pubkey == m.adminPubkey
}

// findDispute ищет спор по идентификатору спора или ордера.
func (m *Mediator) findDispute(ctx context.Context, id string) (*models.Dispute, error) {
	var d models.Dispute
	err := m.db.WithContext(ctx).Where("id = ? OR order_id = ?", id, id).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, cantDo(protocol.CantDoNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load dispute")
	}
	return &d, nil
}

func (m *Mediator) adminTakeDispute(ctx context.Context, req *request) error {
	isAdmin := m.isAdmin(req.sender)
	if !isAdmin {
		user, err := db.FindUser(m.db.WithContext(ctx), req.sender)
		if err != nil {
			return errors.Wrap(err, "find solver")
		}
		if user == nil || !user.IsSolver {
			return cantDo(protocol.CantDoInvalidPubkey)
		}
	}
	d, err := m.findDispute(ctx, req.kind.OrderID())
	if err != nil {
		return err
	}
	from := []models.DisputeStatus{models.DisputeStatusInitiated}
	if isAdmin {
		// администратор может переназначить спор на себя
		from = append(from, models.DisputeStatusInProgress)
	}
	now := m.now()
	res := m.db.WithContext(ctx).Model(&models.Dispute{}).
		Where("id = ? AND status IN ?", d.ID, from).
		Updates(map[string]any{
			"status":        models.DisputeStatusInProgress,
			"solver_pubkey": req.sender,
			"taken_at":      now,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "update dispute")
	}
	if res.RowsAffected == 0 {
		return cantDo(protocol.CantDoInvalidDisputeStatus)
	}
	ord, err := m.loadOrder(ctx, d.OrderID)
	if err != nil {
		return err
	}
	m.record(ctx, req, ord.ID)
	m.sendDispute(ctx, req.sender, ord, protocol.ActionAdminTakeDispute, orderPayload(ord))
	solver := m.peer(ctx, req.sender)
	for _, party := range []string{ptrValue(ord.BuyerPubkey), ptrValue(ord.SellerPubkey)} {
		m.sendDispute(ctx, party, ord, protocol.ActionAdminTakeDispute, solver)
	}
	return nil
}

// authorizeResolution проверяет право закрыть спор по ордеру.
func (m *Mediator) authorizeResolution(ctx context.Context, sender, orderID string) error {
	if m.isAdmin(sender) {
		return nil
	}
	ok, err := db.IsAssignedSolver(m.db.WithContext(ctx), sender, orderID)
	if err != nil {
		return errors.Wrap(err, "check solver")
	}
	if !ok {
		return cantDo(protocol.CantDoIsNotYourDispute)
	}
	return nil
}

func (m *Mediator) adminCancel(ctx context.Context, req *request) error {
	ord, err := m.loadOrder(ctx, req.kind.OrderID())
	if err != nil {
		return err
	}
	if err := m.authorizeResolution(ctx, req.sender, ord.ID); err != nil {
		return err
	}
	m.record(ctx, req, ord.ID)
	switch ord.Status {
	case protocol.StatusCanceledByAdmin:
		return cantDo(protocol.CantDoOrderAlreadyCanceled)
	case protocol.StatusDispute, protocol.StatusActive, protocol.StatusFiatSent:
	default:
		return cantDo(protocol.CantDoNotAllowedByStatus)
	}
	if err := m.cancelHold(ctx, ord); err != nil {
		return err
	}
	if err := m.transition(ctx, ord, []protocol.Status{ord.Status},
		map[string]any{"status": protocol.StatusCanceledByAdmin}); err != nil {
		return err
	}
	m.closeDispute(ctx, ord, models.DisputeStatusSellerRefunded)
	m.sendDispute(ctx, req.sender, ord, protocol.ActionAdminCancel, nil)
	m.sendDispute(ctx, ptrValue(ord.SellerPubkey), ord, protocol.ActionAdminCancel, nil)
	m.sendDispute(ctx, ptrValue(ord.BuyerPubkey), ord, protocol.ActionAdminCancel, nil)
	return nil
}

func (m *Mediator) adminSettle(ctx context.Context, req *request) error {
	ord, err := m.loadOrder(ctx, req.kind.OrderID())
	if err != nil {
		return err
	}
	if err := m.authorizeResolution(ctx, req.sender, ord.ID); err != nil {
		return err
	}
	m.record(ctx, req, ord.ID)
	if ord.Status == protocol.StatusCooperativelyCanceled {
		return cantDo(protocol.CantDoIsNotYourDispute)
	}
	if ord.Status != protocol.StatusDispute {
		return cantDo(protocol.CantDoNotAllowedByStatus)
	}
	if err := m.settle(ctx, ord, []protocol.Status{protocol.StatusDispute}); err != nil {
		return err
	}
	m.closeDispute(ctx, ord, models.DisputeStatusSettled)
	m.sendDispute(ctx, req.sender, ord, protocol.ActionAdminSettle, orderPayload(ord))
	m.sendDispute(ctx, ptrValue(ord.SellerPubkey), ord, protocol.ActionAdminSettle, orderPayload(ord))
	m.sendDispute(ctx, ptrValue(ord.BuyerPubkey), ord, protocol.ActionAdminSettle, orderPayload(ord))
	m.payBuyer(ctx, ord)
	return nil
}

func (m *Mediator) adminAddSolver(ctx context.Context, req *request) error {
	if !m.isAdmin(req.sender) {
		return cantDo(protocol.CantDoInvalidPubkey)
	}
	pubkey := *req.kind.Payload.TextMessage
	if !protocol.ValidPubkey(pubkey) {
		return cantDo(protocol.CantDoInvalidPubkey)
	}
	if err := db.UpsertSolver(m.db.WithContext(ctx), pubkey); err != nil {
		return errors.Wrap(err, "add solver")
	}
	m.log.Info("solver added", zap.String("pubkey", pubkey))
	m.deliver(ctx, req.sender, nil, protocol.NewOrderMessage(nil, req.kind.RequestID, nil, protocol.ActionAdminAddSolver,
		&protocol.Payload{TextMessage: &pubkey}))
	return nil
}

// closeDispute фиксирует исход спора и архивирует переписку по ордеру.
func (m *Mediator) closeDispute(ctx context.Context, ord *models.Order, status models.DisputeStatus) {
	var d models.Dispute
	err := m.db.WithContext(ctx).Where("order_id = ?", ord.ID).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return
	}
	if err != nil {
		m.log.Warn("load dispute", zap.String("order", ord.ID), zap.Error(err))
		return
	}
	upd := map[string]any{"status": status}
	if object, err := m.archiveTranscript(ctx, &d, ord); err != nil {
		m.log.Warn("archive transcript", zap.String("dispute", d.ID), zap.Error(err))
	} else if object != "" {
		upd["transcript_object"] = object
	}
	if err := m.db.WithContext(ctx).Model(&d).Updates(upd).Error; err != nil {
		m.log.Warn("update dispute", zap.String("dispute", d.ID), zap.Error(err))
	}
}

// Transcript архив переписки по спору
type Transcript struct {
	DisputeID  string                   `json:"dispute_id"`
	Order      *protocol.SmallOrder     `json:"order"`
	Messages   []services.LoggedMessage `json:"messages"`
	ArchivedAt time.Time                `json:"archived_at"`
}

func (m *Mediator) archiveTranscript(ctx context.Context, d *models.Dispute, ord *models.Order) (string, error) {
	if m.store == nil || m.msgLog == nil {
		return "", nil
	}
	history, err := m.msgLog.History(ctx, ord.ID)
	if err != nil {
		return "", errors.Wrap(err, "load history")
	}
	b, err := json.Marshal(Transcript{DisputeID: d.ID, Order: ord.Small(), Messages: history, ArchivedAt: m.now()})
	if err != nil {
		return "", err
	}
	return m.store.Upload(ctx, "disputes/"+d.ID+".json", bytes.NewReader(b), int64(len(b)), "application/json")
}
