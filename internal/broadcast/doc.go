// Package broadcast delivers one message to every user who recently wrote to
// a Telegram bot.
//
// A run verifies the bot token, reads the bot's recent update feed, derives
// the distinct senders from it and sends the composed message to each of them
// in concurrent batches with a pause between batches. Individual delivery
// failures never abort a run; they are counted and listed in the Report.
package broadcast
