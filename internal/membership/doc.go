// Package membership manages plans, subscriptions, and payments.
//
// Checkout is a mock: it records a completed payment and opens a
// subscription in one transaction without contacting a payment provider.
// Receipt numbers are snowflake IDs, unique across nodes as long as each
// node runs with its own payments.node_id.
package membership
