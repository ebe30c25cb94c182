package verifier

import (
	"fmt"

	"github.com/tphakala/spamguard-go/internal/classifier"
)

const responseFormat = `Respond in this exact format:
CLASSIFICATION: [%s or LEGITIMATE]
CONFIDENCE: [0-100]
REASON: [Brief explanation in one sentence]`

const emailPrompt = `You are an expert spam detection system. Analyze this email and determine if it's SPAM or LEGITIMATE.

Email Content:
---
%s
---

IMPORTANT: Be BALANCED in your analysis. Only classify as SPAM if there are clear spam indicators. Normal business emails, personal communications, and routine messages should be classified as LEGITIMATE.

%s

SPAM indicators (classify as SPAM only if these are present):
- Unsolicited commercial content or advertisements
- Prize/lottery/winner notifications you didn't enter
- Requests for personal info (passwords, SSN, bank details, OTP)
- Urgency/threatening language ("act now", "account suspended", "verify immediately")
- Too-good-to-be-true offers (free money, inheritance, lottery)
- Phishing attempts (fake login pages, brand impersonation)
- Cryptocurrency/investment schemes
- Fake job offers requiring fees
- Tech support scams
- Requests to transfer money or gift cards
- Fake invoices or receipts
- Account verification requests you didn't initiate

LEGITIMATE indicators (classify as LEGITIMATE if these apply):
- Normal business communications
- Personal messages from known contacts
- Meeting invitations and calendar events
- Project updates and work discussions
- Newsletter subscriptions user opted into
- Order confirmations from known retailers
- Password reset requests user initiated`

const smsPrompt = `You are an expert spam detection system. Analyze this SMS message and determine if it's SPAM or LEGITIMATE.

SMS Content:
---
%s
---

IMPORTANT: Be BALANCED in your analysis. Only classify as SPAM if there are clear spam indicators. Normal personal messages and legitimate notifications should be classified as LEGITIMATE.

%s

SPAM indicators (classify as SPAM only if these are present):
- Prize/lottery/winner notifications
- Shortened links from unknown numbers requesting action
- Requests for personal info or OTP codes you didn't initiate
- Urgent action required with threats
- Package delivery scams (unexpected delivery with payment required)
- Loan/credit card offers from unknown numbers
- Government impersonation
- Messages claiming your account is compromised

LEGITIMATE indicators (classify as LEGITIMATE if these apply):
- Messages from known contacts
- Appointment reminders from businesses you use
- Delivery notifications from expected orders
- Two-factor authentication codes you requested
- Bank alerts for transactions you made`

const urlPrompt = `You are an expert phishing detection system. Analyze this URL and determine if it's PHISHING/MALICIOUS or LEGITIMATE.

URL:
---
%s
---

IMPORTANT: Be BALANCED in your analysis. Only classify as PHISHING if there are clear malicious indicators. Well-known domains and legitimate websites should be classified as LEGITIMATE.

%s

PHISHING indicators to check:
- Typosquatting (misspelled domains: paypa1.com, amaz0n.com, g00gle.com)
- Suspicious TLDs (.tk, .ml, .ga, .cf, .gq, .xyz, .top, .work, .click)
- IP addresses instead of domain names
- Excessive subdomains or brand names in subdomains
- URL shorteners for sensitive actions
- Non-HTTPS for login/payment pages
- Lookalike characters (0 for o, 1 for l, rn for m)
- Suspicious keywords in URL (secure-login, verify-account, update-info)
- Free hosting domains used for login pages`

// Prompt builds the instruction for content type t with text embedded verbatim.
func Prompt(t classifier.ContentType, text string) string {
	switch t {
	case classifier.URL:
		return fmt.Sprintf(urlPrompt, text, fmt.Sprintf(responseFormat, "PHISHING"))
	case classifier.SMS:
		return fmt.Sprintf(smsPrompt, text, fmt.Sprintf(responseFormat, "SPAM"))
	default:
		return fmt.Sprintf(emailPrompt, text, fmt.Sprintf(responseFormat, "SPAM"))
	}
}
