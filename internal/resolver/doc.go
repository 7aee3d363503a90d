// Package resolver turns CONNECT domain names into socket addresses, either
// through the system resolver or by querying a DNS server directly.
package resolver
