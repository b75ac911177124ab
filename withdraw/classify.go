package withdraw

import (
	"fmt"
	"strings"

	"github.com/ellemouton/lnurlw"
)

// Alert texts shown to the operator. Operators are trained on these, keep
// them verbatim.
const (
	MsgIncompatibleCard  = "Not a compatible flashcard"
	MsgNoInvoice         = "add an amount and create an invoice before scanning the card"
	MsgInsufficientFunds = "Payment Failed: Insufficient Funds"
	MsgRetry             = "Something went wrong. Please, try again later"
)

var insufficientFundsReasons = []string{
	"not within bounds",
	"Amount is bigger than the maximum",
}

// Classify maps a callback result onto an outcome and the alert to show, the
// alert is empty on success.
func Classify(res *lnurlw.CallbackResult) (lnurlw.Outcome, string) {
	switch {
	case res.OK() && strings.EqualFold(res.Status, lnurlw.StatusOK):
		return lnurlw.Success(), ""

	case res.OK():
		msg := res.Reason
		if msg == "" {
			msg = MsgRetry
		}
		return lnurlw.Failure(msg), msg

	case insufficientFunds(res.Reason):
		return lnurlw.InsufficientFunds(), MsgInsufficientFunds
	}

	msg := fmt.Sprintf("Error processing payment.\n\nHTTP error code: %d",
		res.HTTPStatus)
	if errMsg := res.Reason + res.Message; errMsg != "" {
		msg += "\n\nError message: " + errMsg
	}

	return lnurlw.Failure(msg), msg
}

func insufficientFunds(reason string) bool {
	if reason == "" {
		return false
	}

	for _, r := range insufficientFundsReasons {
		if strings.Contains(reason, r) {
			return true
		}
	}

	return false
}

func mismatchMessage(text, reason string) string {
	return fmt.Sprintf("not a properly configured lnurl withdraw tag\n\n"+
		"%s\n\n%s", text, reason)
}

func transportMessage(err error) string {
	return fmt.Sprintf("Error processing payment.\n\n%v", err)
}
