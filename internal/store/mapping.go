package store

import "encoding/json"

// ResultMapping is the schema of the persisted evaluation results. The
// per-slot evaluation texts under response.* are mapped dynamically as
// analyzed text with a raw keyword sub-field; accounting fields are fixed.
var ResultMapping = json.RawMessage(`{
  "settings": {
    "analysis": {"analyzer": {"ko_standard": {"type": "standard"}}}
  },
  "mappings": {
    "dynamic": "true",
    "dynamic_templates": [
      {
        "response_fields_as_text": {
          "path_match": "response.*",
          "mapping": {
            "type": "text",
            "analyzer": "ko_standard",
            "fields": {"keyword": {"type": "keyword", "ignore_above": 32766}}
          }
        }
      }
    ],
    "properties": {
      "rptc_id":  {"type": "keyword"},
      "rgtr_id":  {"type": "keyword"},
      "stdnt_id": {"type": "keyword"},
      "response": {"type": "object", "enabled": true},
      "feedback": {
        "type": "text",
        "analyzer": "ko_standard",
        "fields": {"keyword": {"type": "keyword", "ignore_above": 32766}}
      },
      "total_input_tokens":  {"type": "integer"},
      "total_output_tokens": {"type": "integer"},
      "total_tokens":        {"type": "integer"},
      "total_cost_krw":      {"type": "float"},
      "total_time_seconds":  {"type": "float"},
      "created_at": {"type": "date"},
      "mdfcn_dt":   {"type": "keyword"}
    }
  }
}`)

// ErrorMapping is the schema of per-attempt failure artifacts.
var ErrorMapping = json.RawMessage(`{
  "mappings": {
    "properties": {
      "rptc_id":    {"type": "keyword"},
      "error":      {"type": "text"},
      "created_dt": {"type": "date"}
    }
  }
}`)

// ElectionMapping is the schema of the leader-election lease index.
var ElectionMapping = json.RawMessage(`{
  "mappings": {
    "properties": {
      "host":       {"type": "keyword"},
      "pid":        {"type": "integer"},
      "created_at": {"type": "long"}
    }
  }
}`)
