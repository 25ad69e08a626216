// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Conversation: Ordered, concurrency-safe message history with reset
//   - Message: Role plus a Content value (Text or Image)
//   - Reply: The single live assistant message of an in-progress turn
//   - ModelInfo: Registry entry for a known remote model
//
// # Usage
//
//	conv := model.NewConversation()
//	_ = conv.Append(model.NewUserText("2+2?"))
//
//	reply, _ := conv.BeginReply()
//	reply.Append("4")
//	msg, _ := reply.Commit()
//
// Snapshots are copies; mutating them never affects the conversation.
package model
