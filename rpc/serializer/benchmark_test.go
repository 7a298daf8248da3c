package serializer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ValentinKolb/dQRY/rpc/common"
	"github.com/stretchr/testify/require"
)

// benchmarkMessages covers the requests of the query protocol and pages of
// growing size
func benchmarkMessages() map[string]common.Message {
	page := func(rows int) []byte {
		var sb strings.Builder
		sb.WriteString("[")
		for i := 0; i < rows; i++ {
			if i > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, `[%d,"name-%d",%d,"berlin"]`, i, i, 20+i%50)
		}
		sb.WriteString("]")
		return []byte(sb.String())
	}

	return map[string]common.Message{
		"Empty": {
			MsgType: common.MsgTSuccess,
		},
		"Fetch": *common.NewFetchRequest(42, 1024),
		"Close": *common.NewCloseRequest(42),
		"Execute": *common.NewExecuteRequest("people", "Person", "age > ? AND city = ?",
			[]byte(`[30,"berlin"]`), 1024),
		"ExecuteFields": *common.NewExecuteFieldsRequest("people",
			"SELECT id, name, age, city FROM Person WHERE age > ? ORDER BY name LIMIT 1000", []byte(`[30]`), 1024),
		"SmallPage":  *common.NewPageResponse(common.MsgTQryFetch, 42, page(10), nil, false),
		"MediumPage": *common.NewPageResponse(common.MsgTQryFetch, 42, page(128), nil, false),
		"LargePage":  *common.NewPageResponse(common.MsgTQryFetch, 42, page(1024), nil, true),
		"FirstPageWithFields": *common.NewPageResponse(common.MsgTQryExecuteFields, 42, page(128),
			[]byte(`[{"fieldName":"id","fieldTypeName":"int"},{"fieldName":"name","fieldTypeName":"string"}]`), false),
		"ErrorMessage": *common.NewPageResponse(common.MsgTQryFetch, 42, nil, nil, false).
			WithError("cannot find query [qryId=42]", 1),
	}
}

// BenchmarkSerializers measures encode and decode per serializer and message
// and reports the frame size of each combination.
func BenchmarkSerializers(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		s := factory()
		for msgName, msg := range messages {
			data, err := s.Serialize(msg)
			require.NoError(b, err)

			b.Run(name+"/encode/"+msgName, func(b *testing.B) {
				b.ReportMetric(float64(len(data)), "bytes")
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					if _, err := s.Serialize(msg); err != nil {
						b.Fatal(err)
					}
				}
			})

			b.Run(name+"/decode/"+msgName, func(b *testing.B) {
				b.ReportAllocs()
				var out common.Message
				for i := 0; i < b.N; i++ {
					if err := s.Deserialize(data, &out); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
