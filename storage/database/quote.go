package database

import "github.com/lib/pq"

func pqQuoteIdent(s string) string   { return pq.QuoteIdentifier(s) }
func pqQuoteLiteral(s string) string { return pq.QuoteLiteral(s) }
