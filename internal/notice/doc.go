// Package notice provides the Notice record, the board URL templates and the
// seen/unseen diff used to decide which announcements still need a digest.
//
// A notice is identified solely by the message id the board assigns to it.
// Titles, categories and dates are display metadata and may change between
// runs without making a notice "new" again.
package notice
