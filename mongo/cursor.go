package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/velmie/spool"
)

type cursor struct {
	cur          *mongo.Cursor
	payloadField string
	current      spool.Record
}

func (c *cursor) Next(ctx context.Context) bool {
	if !c.cur.Next(ctx) {
		return false
	}
	c.current = recordFromRaw(c.cur.Current, c.payloadField)

	return true
}

func (c *cursor) Record() spool.Record {
	return c.current
}

func (c *cursor) Err() error {
	return spool.WrapStorage("spool mongo: cursor", c.cur.Err())
}

func (c *cursor) Close(ctx context.Context) error {
	return c.cur.Close(ctx)
}

// recordFromRaw extracts id and payload from a spool document. Documents whose _id
// is not a 16 byte binary or whose payload is neither binary nor a string yield a
// record with an empty payload, which the engine skips as malformed.
func recordFromRaw(raw bson.Raw, payloadField string) spool.Record {
	idVal, err := raw.LookupErr("_id")
	if err != nil {
		return spool.Record{}
	}
	_, data, ok := idVal.BinaryOK()
	if !ok {
		return spool.Record{}
	}
	id, err := spool.IDFromBytes(data)
	if err != nil {
		return spool.Record{}
	}

	rec := spool.Record{ID: id}
	val, err := raw.LookupErr(payloadField)
	if err != nil {
		return rec
	}
	switch val.Type {
	case bsontype.Binary:
		_, payload, _ := val.BinaryOK()
		rec.Payload = append([]byte(nil), payload...)
	case bsontype.String:
		rec.Payload = []byte(val.StringValue())
	}

	return rec
}
