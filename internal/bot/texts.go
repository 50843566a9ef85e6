package bot

import (
	"fmt"
	"time"

	"github.com/McdWebs/whatsapp-bot/internal/domain"
)

// UI texts. Menus go through whatsapp.BuildMenu; everything else is a
// plain body.
const (
	typeMenuTitle = "What would you like to do?"

	offsetMenuTitle = "When should I remind you before sunset?"

	invalidOffsetTitle = "Invalid selection. Please choose 1, 2, or 3.\n\n" + offsetMenuTitle

	timePrompt = "Please enter the time for your reminder in HH:MM format (24-hour).\nExample: 18:30"

	invalidTimePrompt = "That doesn't look like a valid time.\n\n" + timePrompt

	helpText = `Available commands:
• HELP - Show this menu
• STOP / UNSUBSCRIBE - Stop all reminders

I can remind you about:
1. Tefillin (before sunset)
2. A custom daily time
3. Sunset times

To set up a new reminder, just send any message!`

	stopConfirmation = "All reminders have been stopped. You can start again anytime by sending a message."

	noRemindersToDelete = "You have no active reminders to delete."

	deleteMenuTitle = "Select a reminder to delete:"

	storeErrorNotice = "Something went wrong on our side. Please try again in a moment."

	zmanimErrorNotice = "Sunset times are unavailable right now. Please try again in a few minutes."
)

var typeMenuOptions = []string{
	"Tefillin Reminder",
	"Custom Reminder",
	"Sunset Reminder",
	"Delete Reminder",
}

var offsetMenuOptions = []string{"20 minutes", "30 minutes", "1 hour"}

func locationPrompt(defaultLocation string) string {
	return fmt.Sprintf("Please enter your city name (e.g., Jerusalem, Tel Aviv, Haifa).\nDefault: %s", defaultLocation)
}

func tefillinConfirmation(offsetMinutes int, fire time.Time, loc *time.Location) string {
	return fmt.Sprintf(
		"Your reminder has been set successfully.\n\nYou will be reminded %d minutes before sunset every day (next at %s).",
		offsetMinutes, fire.In(loc).Format("15:04"),
	)
}

func fixedTimeConfirmation(t domain.ReminderType, clock string) string {
	return fmt.Sprintf("Your %s has been set for %s every day.", t.Label(), clock)
}

func eventConfirmation(t domain.ReminderType, location string) string {
	return fmt.Sprintf("Your %s has been set for %s.", t.Label(), location)
}

func deleteConfirmation(t domain.ReminderType) string {
	return fmt.Sprintf("✅ %q has been deleted successfully.", t.Label())
}

// deleteMenuOption renders one line of the delete menu with enough
// detail to tell definitions of different kinds apart.
func deleteMenuOption(r *domain.Reminder) string {
	switch {
	case r.Type == domain.ReminderTefillin && r.OffsetMinutes > 0:
		return fmt.Sprintf("%s (%d min before sunset)", r.Type.Label(), r.OffsetMinutes)
	case r.Time != "":
		return fmt.Sprintf("%s (%s)", r.Type.Label(), r.Time)
	case r.Location != "":
		return fmt.Sprintf("%s (%s)", r.Type.Label(), r.Location)
	default:
		return r.Type.Label()
	}
}
