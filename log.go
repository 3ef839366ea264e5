package gatt

import "github.com/sirupsen/logrus"

// Logger is the package-wide logrus instance. Configure it (via
// SetFormatter/SetLevel) to change how the stack logs; replacing it
// only affects components constructed afterwards, since each binds its
// component logger to Logger when it is built.
var Logger = logrus.StandardLogger()

// componentLog returns a logger tagged with a "component" field, so
// log lines from the HCI engine, the ACL layer, and the ATT server can
// be told apart and filtered independently.
func componentLog(component string) *logrus.Entry {
	return Logger.WithField("component", component)
}
