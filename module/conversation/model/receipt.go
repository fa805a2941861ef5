package model

// ReceiptKind selects one of the two receipt sets of a message.
type ReceiptKind int

const (
	ReceiptDelivered ReceiptKind = iota + 1
	ReceiptSeen
)

func (k ReceiptKind) String() string {
	switch k {
	case ReceiptDelivered:
		return "delivered"
	case ReceiptSeen:
		return "seen"
	default:
		return "unknown"
	}
}

// Field is the bson field holding this receipt set.
func (k ReceiptKind) Field() string {
	if k == ReceiptSeen {
		return MessageFieldSeenBy
	}
	return MessageFieldDeliveredTo
}

// Set returns the matching receipt slice of m.
func (k ReceiptKind) Set(m *Message) []string {
	if k == ReceiptSeen {
		return m.SeenBy
	}
	return m.DeliveredTo
}
