package domain

// Document paths, laid out teacher first so every collection is owned by one
// guildmaster.

const ActiveBattleID = "active-battle"

func TeacherPath(teacherID string) string {
	return "teachers/" + teacherID
}

func StudentsCollection(teacherID string) string {
	return TeacherPath(teacherID) + "/students"
}

func StudentPath(teacherID, studentID string) string {
	return StudentsCollection(teacherID) + "/" + studentID
}

func LiveBattlePath(teacherID string) string {
	return TeacherPath(teacherID) + "/liveBattles/" + ActiveBattleID
}

func BossBattlePath(teacherID, battleID string) string {
	return TeacherPath(teacherID) + "/bossBattles/" + battleID
}

func BossBattlesCollection(teacherID string) string {
	return TeacherPath(teacherID) + "/bossBattles"
}

func GameLogCollection(teacherID string) string {
	return TeacherPath(teacherID) + "/gameLog"
}

func BattleSummariesCollection(teacherID string) string {
	return TeacherPath(teacherID) + "/battleSummaries"
}
