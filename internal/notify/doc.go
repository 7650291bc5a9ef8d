// Package notify delivers stock alerts to Telegram chats.
//
// Every configured recipient gets its own sendMessage call (Markdown parse mode,
// link previews disabled). Delivery outcomes are reported per recipient in a
// Report; a failing chat never prevents delivery to the others and Send never
// returns an error.
//
// Without a bot token or recipients the notifier is inert and Send only logs.
package notify
