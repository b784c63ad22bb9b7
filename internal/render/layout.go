package render

// layoutSource wraps a template body. Optional elements are rendered only
// when their binding is present.
const layoutSource = `<html><body style="font-family: Arial, sans-serif; color: #333; line-height:1.6;">
<div style="max-width:600px;margin:auto;border:1px solid #ddd;border-radius:8px;padding:20px;">
<p>Hi {{ first_name }},</p>
<p>{{ body }}</p>
{% if cta_url %}<div style="text-align:left;margin:30px 0;">
<a href="{{ cta_url }}" style="background-color:#d93025;color:white;padding:12px 28px;text-decoration:none;border-radius:6px;display:inline-block;font-weight:bold;font-size:16px;">{{ cta_label }}</a>
</div>{% endif %}
{% if signature %}<br><br>
<div style="color:#000;font-weight:bold;">{{ signature }}</div>{% endif %}
{% if unsubscribe_url %}<hr style="margin-top:30px;border:0;border-top:1px solid #ccc;">
<div style="text-align:center;margin-top:10px;">
<a href="{{ unsubscribe_url }}" style="color:#d93025;text-decoration:none;font-size:12px;">Unsubscribe</a>
</div>{% endif %}
{% if pixel_url %}<img src="{{ pixel_url }}" width="1" height="1" style="display:block;margin:0 auto;" alt="." />{% endif %}
</div>
</body></html>
`
