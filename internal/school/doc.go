// Package school manages the institutions that own bell controllers.
//
// A school groups controllers, timetables and user accounts. Its name is
// part of the timetable identifier pushed to controllers, so the device
// and timetable packages both depend on it.
package school
