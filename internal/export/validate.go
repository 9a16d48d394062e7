// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/jeranaias/ownai/internal/model"
)

// Validate checks the structure of an imported session.
func Validate(s model.Session) error {
	err := validation.ValidateStruct(&s,
		validation.Field(&s.CreatedAt, validation.Required),
		validation.Field(&s.Messages, validation.Each(validation.By(validateMessage))),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	seen := make(map[string]struct{}, len(s.Messages))
	for i, m := range s.Messages {
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("%w: messages[%d]: duplicate id %q", ErrInvalidDocument, i, m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	return nil
}

func validateMessage(value interface{}) error {
	m, ok := value.(model.Message)
	if !ok {
		return fmt.Errorf("unexpected message type %T", value)
	}
	return validation.ValidateStruct(&m,
		validation.Field(&m.ID, validation.Required),
		validation.Field(&m.Sender, validation.Required, validation.In(model.SenderUser, model.SenderModel)),
		validation.Field(&m.Timestamp, validation.Required),
	)
}
