package payments

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/OpenMatHQ/DojoDesk/app/models"
)

// OriginKind tags where a checkout session was started from. One webhook
// completion event funds four different checkout origins; the tag is decoded
// once at the boundary and dispatched exhaustively.
type OriginKind string

const (
	OriginPortalInvoice   OriginKind = "portal_invoice"
	OriginPOSSplit        OriginKind = "pos_split"
	OriginAdminPOSCart    OriginKind = "admin_pos_cart"
	OriginPortalStoreCart OriginKind = "portal_store_cart"
)

// Metadata keys used to round-trip the origin through the gateway.
const (
	metaKeyOrigin        = "origin"
	metaKeyInvoiceID     = "invoice_id"
	metaKeyTransactionID = "transaction_id"
	metaKeyMemberID      = "member_id"
	metaKeyCart          = "cart"
)

// CartLine is one cart entry carried through checkout metadata.
type CartLine struct {
	ItemType       string `json:"t"`
	ItemID         uint   `json:"id"`
	Quantity       int    `json:"q"`
	UnitPriceCents int64  `json:"p"`
	Description    string `json:"d,omitempty"`
}

// TotalCents returns quantity times unit price for the line.
func (l CartLine) TotalCents() int64 {
	return int64(l.Quantity) * l.UnitPriceCents
}

// CheckoutOrigin is the decoded tagged union behind checkout metadata.
type CheckoutOrigin struct {
	Kind          OriginKind
	InvoiceID     uint   // OriginPortalInvoice
	TransactionID uint   // OriginPOSSplit
	MemberID      uint   // cart origins; 0 means walk-in sale
	Cart          []CartLine
}

// TransactionSource maps the origin to the transaction source recorded on a
// materialized transaction.
func (o *CheckoutOrigin) TransactionSource() string {
	switch o.Kind {
	case OriginPortalInvoice:
		return models.TransactionSourcePortalInvoice
	case OriginPOSSplit:
		return models.TransactionSourcePOSSplit
	case OriginAdminPOSCart:
		return models.TransactionSourceAdminPOS
	case OriginPortalStoreCart:
		return models.TransactionSourcePortalStore
	default:
		return ""
	}
}

// EncodeMetadata serializes the origin into the flat string map attached to
// a checkout session. DecodeOrigin must invert it exactly.
func (o *CheckoutOrigin) EncodeMetadata() (map[string]string, error) {
	md := map[string]string{metaKeyOrigin: string(o.Kind)}

	switch o.Kind {
	case OriginPortalInvoice:
		if o.InvoiceID == 0 {
			return nil, fmt.Errorf("portal invoice origin requires an invoice id")
		}
		md[metaKeyInvoiceID] = strconv.FormatUint(uint64(o.InvoiceID), 10)
	case OriginPOSSplit:
		if o.TransactionID == 0 {
			return nil, fmt.Errorf("pos split origin requires a transaction id")
		}
		md[metaKeyTransactionID] = strconv.FormatUint(uint64(o.TransactionID), 10)
	case OriginAdminPOSCart, OriginPortalStoreCart:
		if len(o.Cart) == 0 {
			return nil, fmt.Errorf("cart origin requires at least one line")
		}
		cartJSON, err := json.Marshal(o.Cart)
		if err != nil {
			return nil, err
		}
		md[metaKeyCart] = string(cartJSON)
		if o.MemberID != 0 {
			md[metaKeyMemberID] = strconv.FormatUint(uint64(o.MemberID), 10)
		}
	default:
		return nil, fmt.Errorf("unknown checkout origin %q", o.Kind)
	}
	return md, nil
}

// DecodeOrigin parses checkout metadata back into the tagged union. Unknown
// or malformed origins are an error; the webhook handler records them
// without mutating any domain state.
func DecodeOrigin(metadata map[string]string) (*CheckoutOrigin, error) {
	kind := OriginKind(metadata[metaKeyOrigin])
	origin := &CheckoutOrigin{Kind: kind}

	switch kind {
	case OriginPortalInvoice:
		id, err := parseUintMeta(metadata, metaKeyInvoiceID)
		if err != nil {
			return nil, err
		}
		origin.InvoiceID = id
	case OriginPOSSplit:
		id, err := parseUintMeta(metadata, metaKeyTransactionID)
		if err != nil {
			return nil, err
		}
		origin.TransactionID = id
	case OriginAdminPOSCart, OriginPortalStoreCart:
		cartJSON := metadata[metaKeyCart]
		if cartJSON == "" {
			return nil, fmt.Errorf("cart origin metadata missing cart")
		}
		if err := json.Unmarshal([]byte(cartJSON), &origin.Cart); err != nil {
			return nil, fmt.Errorf("invalid cart metadata: %w", err)
		}
		if md := metadata[metaKeyMemberID]; md != "" {
			id, err := parseUintMeta(metadata, metaKeyMemberID)
			if err != nil {
				return nil, err
			}
			origin.MemberID = id
		}
	default:
		return nil, fmt.Errorf("unknown checkout origin %q", metadata[metaKeyOrigin])
	}
	return origin, nil
}

func parseUintMeta(metadata map[string]string, key string) (uint, error) {
	raw := metadata[key]
	if raw == "" {
		return 0, fmt.Errorf("checkout metadata missing %s", key)
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("checkout metadata %s is not numeric: %w", key, err)
	}
	return uint(id), nil
}
