// Package submit starts backend work for a case and hands the resulting task
// ids to the tracker.
//
// Each category (evidence analysis, association evidence analysis, card
// casting) posts {case_id, evidence_ids} to its own endpoint and tags the
// registered jobs with a Context describing where results will appear. A
// rejected submission raises a submission_failed notification and registers
// nothing; retries are left to the caller.
package submit
