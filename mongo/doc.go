// Package mongo provides a MongoDB spool store on the official v1 driver.
//
// Each record is a document with a UUID binary _id, a binary payload field and a
// nullable claim time field. Default field names are "message" and "sentOn".
// A claim is UpdateOne filtered on the claim field being null.
package mongo
