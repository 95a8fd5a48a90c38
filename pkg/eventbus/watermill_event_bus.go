package eventbus

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rustkas/beamline-worker/pkg/contract"
)

// WatermillEventBus adapts a watermill publisher/subscriber pair onto the
// worker's bus port. Messages are JSON payloads on the worker subjects.
type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber

	assignmentHandler AssignmentHandler
	cancelHandler     CancelHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:  pub,
		subscriber: sub,
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) PublishAck(_ context.Context, ack contract.Ack) error {
	payload, err := json.Marshal(ack)
	if err != nil {
		return err
	}

	return eb.publisher.Publish(AckSubject, message.NewMessage("msg-"+eb.GenerateID(), payload))
}

func (eb *WatermillEventBus) PublishResult(_ context.Context, result map[string]string) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return eb.publisher.Publish(ResultSubject, message.NewMessage("msg-"+eb.GenerateID(), payload))
}

func (eb *WatermillEventBus) OnAssignment(handler AssignmentHandler) {
	eb.assignmentHandler = handler
}

func (eb *WatermillEventBus) OnCancel(handler CancelHandler) {
	eb.cancelHandler = handler
}

// Subscribe starts consuming the assignment and cancel subjects. Handlers
// must be registered before this call. Malformed payloads are acknowledged
// and dropped; handler errors nack the message for redelivery.
func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	assignments, err := eb.subscriber.Subscribe(ctx, AssignmentSubject)
	if err != nil {
		return err
	}

	cancels, err := eb.subscriber.Subscribe(ctx, CancelSubject)
	if err != nil {
		return err
	}

	go func() {
		for msg := range assignments {
			if eb.assignmentHandler == nil {
				msg.Ack()

				continue
			}

			var assignment contract.Assignment

			err := json.Unmarshal(msg.Payload, &assignment)
			if err != nil {
				msg.Ack()

				continue
			}

			err = eb.assignmentHandler(ctx, assignment)
			if err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	go func() {
		for msg := range cancels {
			if eb.cancelHandler == nil {
				msg.Ack()

				continue
			}

			var cancel Cancel

			err := json.Unmarshal(msg.Payload, &cancel)
			if err != nil || cancel.StepID == "" {
				msg.Ack()

				continue
			}

			err = eb.cancelHandler(ctx, cancel.StepID)
			if err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
