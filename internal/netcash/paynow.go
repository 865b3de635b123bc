package netcash

import (
	"net/url"
	"strings"
)

// DefaultPayNowURL is the hosted NetCash Pay Now page.
const DefaultPayNowURL = "https://paynow.netcash.co.za/site/paynow.aspx"

// PayNowLink builds a Pay Now URL for a single payment. The reference is
// returned to the webhook as Reference and extra as Extra1.
func PayNowLink(base, serviceKey, reference, description string, amount float64, extra string) string {
	if base == "" {
		base = DefaultPayNowURL
	}
	q := url.Values{}
	if serviceKey != "" {
		q.Set("m1", serviceKey)
	}
	q.Set("m2", DefaultSoftwareVendorKey)
	q.Set("p2", truncate(reference, 50))
	q.Set("p3", truncate(description, 50))
	q.Set("p4", FormatAmount(amount))
	if extra != "" {
		q.Set("m4", extra)
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}
