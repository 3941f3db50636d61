package model

import "strconv"

// Preference keys for session state and ledgers.
const (
	KeyUserID        = "User ID"
	KeySessionID     = "User"
	KeyNewSession    = "New Session"
	KeyCacheVersion  = "Cache Version"
	KeyAPIKeyHash    = "Api Key Hash"
	KeyNotiLastCheck = "Noti Last Check Time"
	KeyBlocked       = "Blocked Actions"
	KeyPastSessions  = "Past Sessions"
	KeyConditions    = "Conditions"
	KeyActions       = "Actions"
)

func idKey(prefix string, id int) string {
	return prefix + " " + strconv.Itoa(id)
}

func conditionNameKey(id int) string { return idKey("Condition Name", id) }

func actionNameKey(id int) string         { return idKey("Action Name", id) }
func actionContentTypeKey(id int) string  { return idKey("Action Content Type", id) }
func actionContentParamKey(id int) string { return idKey("Action Content Param", id) }
func actionContentBeginKey(id int) string { return idKey("Action Content Begin", id) }
func actionContentEndKey(id int) string   { return idKey("Action Content End", id) }
func actionLibsKey(id int) string         { return idKey("Action Libs", id) }
func actionCacheVersionKey(id int) string { return idKey("Action Cache Version", id) }
func actionPlaceholdersKey(id int) string { return idKey("Action Placeholders", id) }

func placeholderNameKey(id int) string          { return idKey("Placeholder Name", id) }
func placeholderHTMLIDKey(id int) string        { return idKey("Placeholder HTML ID", id) }
func placeholderUnitsCountMaxKey(id int) string { return idKey("Placeholder Units Count Max", id) }
