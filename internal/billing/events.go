package billing

import (
	"context"
	"errors"

	"token_ledger/internal/domain"
	"token_ledger/internal/id"
	"token_ledger/internal/notify"
	"token_ledger/internal/store"
)

// Events handles one-shot monetized events: tips and ticket purchases.
type Events struct {
	engine   *Engine
	notifier notify.Notifier
}

func NewEvents(engine *Engine, notifier notify.Notifier) *Events {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Events{engine: engine, notifier: notifier}
}

// SendTip moves amount from one wallet to another as a tip.
func (ev *Events) SendTip(ctx context.Context, from, to string, amount int64, meta domain.EntryContext) (*TransferResult, error) {
	res, err := ev.engine.Transfer(ctx, TransferRequest{
		From:    from,
		To:      to,
		Amount:  amount,
		Kind:    domain.KindTip,
		Context: meta,
	})
	if err != nil {
		return nil, err
	}
	ev.notifier.Notify(notify.Notification{
		UserID: to,
		Event:  notify.EventTipReceived,
		Data:   map[string]any{"from": from, "amount": amount, "channel_id": meta.ChannelID, "stream_id": meta.StreamID},
	})
	return res, nil
}

// TicketRequest is a purchase of access to one event.
type TicketRequest struct {
	Buyer   string
	Seller  string
	EventID string
	Price   int64
	Context domain.EntryContext
}

// PurchaseTicket charges the buyer and records the ticket in one transaction.
// The duplicate check runs after the buyer's wallet is locked, so concurrent
// purchases of the same event by the same wallet serialize and only the
// first one succeeds.
func (ev *Events) PurchaseTicket(ctx context.Context, req TicketRequest) (*domain.Ticket, *TransferResult, error) {
	if req.EventID == "" {
		return nil, nil, ErrMissingEvent
	}
	meta := req.Context
	meta.EventID = req.EventID
	treq := TransferRequest{
		From:    req.Buyer,
		To:      req.Seller,
		Amount:  req.Price,
		Kind:    domain.KindTicketPurchase,
		Context: meta,
	}
	if err := validate(treq); err != nil {
		return nil, nil, err
	}

	var (
		ticket *domain.Ticket
		res    *TransferResult
	)
	err := ev.engine.store.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := lockWallets(ctx, tx, req.Buyer, req.Seller); err != nil {
			return err
		}
		owned, err := tx.HasTicket(ctx, req.Buyer, req.EventID)
		if err != nil {
			return err
		}
		if owned {
			return ErrDuplicateTicket
		}
		res, err = ev.engine.TransferInTx(ctx, tx, treq)
		if err != nil {
			return err
		}
		ticket = &domain.Ticket{
			ID:             id.NewTicket(),
			WalletID:       req.Buyer,
			EventID:        req.EventID,
			SellerWalletID: req.Seller,
			Price:          req.Price,
			TransferID:     res.TransferID,
			CreatedAt:      ev.engine.now(),
		}
		if err := tx.CreateTicket(ctx, ticket); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return ErrDuplicateTicket
			}
			return err
		}
		return nil
	})
	if err != nil {
		err = FromStore(err)
		ev.engine.logFailure(treq, err)
		return nil, nil, err
	}
	ev.engine.Committed(ctx, treq, res)
	ev.notifier.Notify(notify.Notification{
		UserID: req.Seller,
		Event:  notify.EventTicketSold,
		Data:   map[string]any{"buyer": req.Buyer, "event_id": req.EventID, "price": req.Price},
	})
	return ticket, res, nil
}

// Ticket returns the ticket walletID holds for eventID, if any.
func (ev *Events) Ticket(ctx context.Context, walletID, eventID string) (*domain.Ticket, bool, error) {
	t, err := ev.engine.store.GetTicket(ctx, walletID, eventID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}
