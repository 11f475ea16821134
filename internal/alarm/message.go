package alarm

import "fmt"

const (
	titleAlarm = "ClassAlarm - Class Reminder"
	titleTest  = "ClassAlarm - Test Notification"
)

func alarmMessage(c ClassSchedule, lead int) string {
	return fmt.Sprintf("🔔 Class Reminder!\n%s starts in %d minutes!\n📍 %s at %s",
		c.Subject.Display(), lead, c.Venue.Display(), c.DisplayTime())
}

func testMessage(c ClassSchedule) string {
	return fmt.Sprintf("🔔 Test Notification!\n%s - This is a test notification.\n📍 %s at %s",
		c.Subject.Display(), c.Venue.Display(), c.DisplayTime())
}

func titleFor(k Kind) string {
	if k == KindTest {
		return titleTest
	}
	return titleAlarm
}
