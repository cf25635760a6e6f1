package checkout

import (
	"slices"

	"github.com/m3rciful/shopbot/shop/domain"
)

// Kind names an incoming conversation event.
type Kind string

const (
	KindStart           Kind = "start"
	KindCancel          Kind = "cancel"
	KindShop            Kind = "shop"
	KindCart            Kind = "cart"
	KindOrders          Kind = "orders"
	KindInfo            Kind = "info"
	KindContacts        Kind = "contacts"
	KindSelectProduct   Kind = "select_product"
	KindAddItem         Kind = "add_item"
	KindClearCart       Kind = "clear_cart"
	KindCheckout        Kind = "checkout"
	KindChooseMethod    Kind = "choose_method"
	KindAssertPaid      Kind = "assert_paid"
	KindSkipEmail       Kind = "skip_email"
	KindProvideShipping Kind = "provide_shipping"
	KindText            Kind = "text"
)

// Kinds lists every event kind.
func Kinds() []Kind {
	return []Kind{
		KindStart, KindCancel, KindShop, KindCart, KindOrders, KindInfo, KindContacts,
		KindSelectProduct, KindAddItem, KindClearCart, KindCheckout, KindChooseMethod,
		KindAssertPaid, KindSkipEmail, KindProvideShipping, KindText,
	}
}

// Action carries the structured arguments of a button press.
type Action struct {
	Product string
	Size    string
	Method  domain.Method
	OrderID string
}

// Event is one input to the machine: a command, a button press or free text.
type Event struct {
	Kind   Kind
	Text   string
	Action Action
}

// Transition is a legal (stage, kind) pair.
type Transition struct {
	From domain.Stage
	Kind Kind
}

// Transitions enumerates every pair the machine handles, stage by stage.
func (m *Machine) Transitions() []Transition {
	var out []Transition
	for _, stage := range domain.Stages() {
		for _, kind := range Kinds() {
			if m.handlerFor(stage, kind) != nil {
				out = append(out, Transition{From: stage, Kind: kind})
			}
		}
	}
	return out
}

func (m *Machine) handlerFor(stage domain.Stage, kind Kind) handler {
	if h, ok := m.global[kind]; ok {
		return h
	}
	return m.table[Transition{From: stage, Kind: kind}]
}

// buildTable registers the stage-independent handlers and the per-stage ones.
func (m *Machine) buildTable() {
	m.global = map[Kind]handler{
		KindStart:           m.start,
		KindCancel:          m.cancel,
		KindShop:            m.shop,
		KindCart:            m.cart,
		KindOrders:          m.listOrders,
		KindInfo:            m.info,
		KindContacts:        m.contacts,
		KindSelectProduct:   m.selectProduct,
		KindAddItem:         m.addItem,
		KindClearCart:       m.clearCart,
		KindProvideShipping: m.provideShipping,
	}

	m.table = make(map[Transition]handler)
	on := func(kind Kind, h handler, stages ...domain.Stage) {
		for _, s := range stages {
			m.table[Transition{From: s, Kind: kind}] = h
		}
	}
	on(KindCheckout, m.checkout, domain.StageIdle, domain.StageBrowsing, domain.StageCartReview)
	on(KindChooseMethod, m.chooseMethod, domain.StageAwaitingPaymentChoice)
	on(KindAssertPaid, m.assertPaid, domain.StageAwaitingPaymentConfirmation)
	on(KindSkipEmail, m.skipEmail, domain.StageAwaitingContactEmail)

	on(KindText, m.unknownText, domain.StageIdle, domain.StageCartReview, domain.StageAwaitingPaymentChoice)
	on(KindText, m.browsingText, domain.StageBrowsing)
	on(KindText, m.confirmationText, domain.StageAwaitingPaymentConfirmation)
	on(KindText, m.shippingText, domain.StageAwaitingShipping)
	on(KindText, m.emailText, domain.StageAwaitingContactEmail)
}

func (k Kind) valid() bool {
	return slices.Contains(Kinds(), k)
}
