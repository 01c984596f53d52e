package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"

	core "github.com/DomeLiquid/paycore"
	"github.com/fox-one/mixin-sdk-go/v2"
	"github.com/pkg/errors"
)

// MessageSender is the part of *mixin.Client the notifier needs.
type MessageSender interface {
	SendMessage(ctx context.Context, input *mixin.MessageRequest) error
}

// MixinNotifier sends owner messages as plain-text Mixin messages. Owners are Mixin
// user ids. The message id doubles as the delivery idempotency key.
type MixinNotifier struct {
	sender   MessageSender
	clientId string
}

var _ core.Notifier = (*MixinNotifier)(nil)

func LoadKeystore(path string) (*mixin.Keystore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read keystore")
	}
	var store mixin.Keystore
	if err := json.Unmarshal(raw, &store); err != nil {
		return nil, errors.Wrap(err, "decode keystore")
	}
	return &store, nil
}

func NewMixinNotifierFromKeystore(store *mixin.Keystore) (*MixinNotifier, error) {
	client, err := mixin.NewFromKeystore(store)
	if err != nil {
		return nil, errors.Wrap(err, "mixin client")
	}
	return NewMixinNotifier(client, store.ClientID), nil
}

func NewMixinNotifier(sender MessageSender, clientId string) *MixinNotifier {
	return &MixinNotifier{sender: sender, clientId: clientId}
}

func (n *MixinNotifier) NotifyOwner(ctx context.Context, owner, messageId, text string) error {
	req := &mixin.MessageRequest{
		ConversationID: mixin.UniqueConversationID(n.clientId, owner),
		RecipientID:    owner,
		MessageID:      messageId,
		Category:       mixin.MessageCategoryPlainText,
		Data:           base64.StdEncoding.EncodeToString([]byte(text)),
	}
	if err := n.sender.SendMessage(ctx, req); err != nil {
		return errors.Wrapf(err, "send message %s", messageId)
	}
	return nil
}
