package services

import (
	"fmt"

	"circulation/internal/models"
	"circulation/internal/notify"
)

const dateLayout = "January 2, 2006"

func loanEvent(typ models.NotificationType, loan *models.Loan, title, message string) notify.Event {
	id := loan.ID
	return notify.Event{
		Type:       typ,
		BorrowerID: loan.BorrowerID,
		LoanID:     &id,
		Title:      title,
		Message:    message,
	}
}

func holdEvent(typ models.NotificationType, hold *models.Hold, title, message string) notify.Event {
	id := hold.ID
	return notify.Event{
		Type:       typ,
		BorrowerID: hold.BorrowerID,
		HoldID:     &id,
		Title:      title,
		Message:    message,
	}
}

func requestEvent(typ models.NotificationType, req *models.CheckoutRequest, title, message string) notify.Event {
	return notify.Event{
		Type:       typ,
		BorrowerID: req.BorrowerID,
		LoanID:     req.LoanID,
		Title:      title,
		Message:    message,
	}
}

func checkoutEvent(loan *models.Loan, pub string) notify.Event {
	return loanEvent(models.NotificationCheckout, loan,
		"Item Checked Out: "+pub,
		fmt.Sprintf("You have checked out %q. It is due back on %s.", pub, loan.DueDate.Format(dateLayout)))
}

func checkinEvent(loan *models.Loan, pub string) notify.Event {
	return loanEvent(models.NotificationCheckin, loan,
		"Item Returned: "+pub,
		fmt.Sprintf("Thank you for returning %q.", pub))
}

func fineEvent(loan *models.Loan, pub string) notify.Event {
	late := daysLate(loan.DueDate, *loan.ReturnedAt)
	if late < 1 {
		late = 1
	}
	return loanEvent(models.NotificationFineAdded, loan,
		"Fine Added: "+pub,
		fmt.Sprintf("A fine of %d has been added to your account because %q was returned %d day(s) late.", loan.FineAmount, pub, late))
}

func renewalEvent(loan *models.Loan, pub string) notify.Event {
	return loanEvent(models.NotificationRenewal, loan,
		"Item Renewed: "+pub,
		fmt.Sprintf("%q has been renewed. The new due date is %s.", pub, loan.DueDate.Format(dateLayout)))
}

func holdPlacedEvent(hold *models.Hold, pub string) notify.Event {
	return holdEvent(models.NotificationHoldPlaced, hold,
		"Hold Placed: "+pub,
		fmt.Sprintf("Your hold on %q has been placed. You are number %d in the queue.", pub, hold.QueuePosition))
}

func holdReadyEvent(hold *models.Hold, pub string) notify.Event {
	msg := fmt.Sprintf("%q is ready for pickup.", pub)
	if hold.ExpiresAt != nil {
		msg = fmt.Sprintf("%q is ready for pickup. Please collect it by %s.", pub, hold.ExpiresAt.Format(dateLayout))
	}
	return holdEvent(models.NotificationHoldReady, hold, "Hold Ready for Pickup: "+pub, msg)
}

func holdCancelledEvent(hold *models.Hold, pub string) notify.Event {
	return holdEvent(models.NotificationHoldCancelled, hold,
		"Hold Cancelled: "+pub,
		fmt.Sprintf("Your hold on %q has been cancelled.", pub))
}

func holdExpiredEvent(hold *models.Hold, pub string) notify.Event {
	return holdEvent(models.NotificationHoldCancelled, hold,
		"Hold Expired: "+pub,
		fmt.Sprintf("Your hold on %q expired because it was not picked up in time.", pub))
}

func requestSubmittedEvent(req *models.CheckoutRequest, pub string) notify.Event {
	return requestEvent(models.NotificationHoldPlaced, req,
		"Checkout Request Submitted: "+pub,
		fmt.Sprintf("Your checkout request for %q has been submitted and is awaiting staff review.", pub))
}

func requestApprovedEvent(req *models.CheckoutRequest, pub string) notify.Event {
	msg := fmt.Sprintf("Your checkout request for %q has been approved.", pub)
	if req.PickupBy != nil {
		msg = fmt.Sprintf("Your checkout request for %q has been approved. Please pick it up by %s.", pub, req.PickupBy.Format(dateLayout))
	}
	return requestEvent(models.NotificationHoldReady, req, "Checkout Request Approved: "+pub, msg)
}

func requestDeniedEvent(req *models.CheckoutRequest, pub string) notify.Event {
	msg := fmt.Sprintf("Your checkout request for %q has been denied.", pub)
	if req.StaffNotes != "" {
		msg += " Reason: " + req.StaffNotes
	}
	return requestEvent(models.NotificationHoldCancelled, req, "Checkout Request Denied: "+pub, msg)
}

func requestCancelledEvent(req *models.CheckoutRequest, pub string) notify.Event {
	msg := fmt.Sprintf("Your checkout request for %q has been cancelled.", pub)
	if req.StaffNotes == pickupDeadlinePassed {
		msg = fmt.Sprintf("Your checkout request for %q was cancelled because the pickup deadline passed.", pub)
	}
	return requestEvent(models.NotificationHoldCancelled, req, "Checkout Request Cancelled: "+pub, msg)
}
