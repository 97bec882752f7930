package serializer

import (
	"strings"
	"testing"
)

// benchmarkDocuments returns a set of documents for targeted benchmarking
func benchmarkDocuments() map[string]testDocument {
	return map[string]testDocument{
		"KeyOnly": {
			Key: "k",
		},
		"Medium": {
			Key:   "medium-length-key-for-testing",
			Name:  "medium length value for testing serialization",
			Count: 1000,
			Tags:  []string{"a", "b", "c"},
		},
		"Large": {
			Key:   "key",
			Name:  strings.Repeat("x", 16*1024),
			Attrs: map[string]string{"a": "1", "b": "2", "c": "3"},
		},
	}
}

// BenchmarkSerialize benchmarks serialization for all implementations with various documents
func BenchmarkSerialize(b *testing.B) {
	for name, factory := range testSerializers {
		for docName, doc := range benchmarkDocuments() {
			b.Run(name+"_"+docName, func(b *testing.B) {
				serializer := factory()
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					if _, err := serializer.Serialize(doc); err != nil {
						b.Fatalf("Failed to serialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkDeserialize benchmarks deserialization for all implementations with various documents
func BenchmarkDeserialize(b *testing.B) {
	for name, factory := range testSerializers {
		for docName, doc := range benchmarkDocuments() {
			b.Run(name+"_"+docName, func(b *testing.B) {
				serializer := factory()
				data, err := serializer.Serialize(doc)
				if err != nil {
					b.Fatalf("Failed to serialize: %v", err)
				}
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					var result testDocument
					if err := serializer.Deserialize(data, &result); err != nil {
						b.Fatalf("Failed to deserialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkBodyCodec benchmarks the JSON to VelocyPack conversion used by lazy bodies
func BenchmarkBodyCodec(b *testing.B) {
	codec := DefaultCodec()
	text := `{"_key":"k","name":"` + strings.Repeat("y", 1024) + `","count":3}`

	b.Run("EncodeJSON", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := codec.EncodeJSON(text); err != nil {
				b.Fatal(err)
			}
		}
	})

	bin, _ := codec.EncodeJSON(text)
	b.Run("DecodeJSON", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := codec.DecodeJSON(bin); err != nil {
				b.Fatal(err)
			}
		}
	})
}
