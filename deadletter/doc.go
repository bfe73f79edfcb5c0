// Package deadletter owns the terminal failure path for webhook
// deliveries: the manager that publishes, lists, replays, and purges
// dead-lettered records, and the dispatcher that drains the durable side
// channel to registered consumers.
package deadletter
